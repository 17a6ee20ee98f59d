// Package accounts keeps track of which signed-in slot (the n in /mail/u/n/)
// each mailbox occupies in the user's browser, so links open in the right
// account.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "account-index:"

var (
	ErrInvalidAddress = errors.New("invalid mailbox address")
	ErrInvalidIndex   = errors.New("account index must not be negative")
)

type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, prefix: keyPrefix}
}

func (s *Store) key(address string) (string, error) {
	a := strings.ToLower(strings.TrimSpace(address))
	if a == "" || !strings.Contains(a, "@") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return s.prefix + a, nil
}

func (s *Store) SetIndex(ctx context.Context, address string, index int) error {
	if index < 0 {
		return ErrInvalidIndex
	}
	key, err := s.key(address)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, index, 0).Err(); err != nil {
		return fmt.Errorf("set account index: %w", err)
	}
	return nil
}

// Index returns the slot registered for address, or nil when none is known.
func (s *Store) Index(ctx context.Context, address string) (*int, error) {
	key, err := s.key(address)
	if err != nil {
		return nil, err
	}
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account index: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("corrupt account index %q for %s", v, address)
	}
	return &n, nil
}

func (s *Store) Delete(ctx context.Context, address string) error {
	key, err := s.key(address)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete account index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
