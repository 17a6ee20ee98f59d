package internal

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// TokenClass selects the payload prefix of a web UI token.
type TokenClass int

const (
	ClassThread TokenClass = iota
	ClassMessage
)

var ErrInvalidIdentifierFormat = errors.New("invalid identifier format")

var legacyIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{15,16}$`)

func (c TokenClass) String() string {
	switch c {
	case ClassThread:
		return "thread"
	case ClassMessage:
		return "message"
	default:
		return fmt.Sprintf("TokenClass(%d)", int(c))
	}
}

// Prefix is the tag written in front of the decimal id.
func (c TokenClass) Prefix() string {
	if c == ClassMessage {
		return "msg-f:"
	}
	return "f:"
}

func ParseTokenClass(s string) (TokenClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "thread", "f":
		return ClassThread, nil
	case "message", "msg", "msg-f":
		return ClassMessage, nil
	default:
		return 0, fmt.Errorf("unknown token class %q", s)
	}
}

func (c TokenClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *TokenClass) UnmarshalText(b []byte) error {
	parsed, err := ParseTokenClass(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// IsLegacyID reports whether s looks like a mail API hex id (15 or 16 hex
// characters, any case).
func IsLegacyID(s string) bool {
	return legacyIDPattern.MatchString(s)
}

func HexToDecimal(hex string) (string, error) {
	if !IsLegacyID(hex) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifierFormat, hex)
	}
	n, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifierFormat, hex)
	}
	return n.String(), nil
}

func CanonicalPayload(hex string, class TokenClass) (string, error) {
	dec, err := HexToDecimal(hex)
	if err != nil {
		return "", err
	}
	return class.Prefix() + dec, nil
}

// Encoding holds every intermediate value of a legacy id to web token
// conversion.
type Encoding struct {
	Class   TokenClass `json:"class"`
	Hex     string     `json:"hex"`
	Decimal string     `json:"decimal"`
	Payload string     `json:"payload"`
	Base64  string     `json:"base64"`
	Token   string     `json:"token"`
}

func Encode(hex string, class TokenClass) (Encoding, error) {
	dec, err := HexToDecimal(hex)
	if err != nil {
		return Encoding{}, err
	}
	enc := Encoding{
		Class:   class,
		Hex:     strings.ToLower(hex),
		Decimal: dec,
		Payload: class.Prefix() + dec,
	}
	enc.Base64 = base64.RawStdEncoding.EncodeToString([]byte(enc.Payload))

	enc.Token, err = Transcode(enc.Base64, FullAlphabet, ReducedAlphabet)
	if err != nil {
		return Encoding{}, fmt.Errorf("transcode %q: %w", enc.Base64, err)
	}
	return enc, nil
}

// EncodeLegacyID converts a legacy hex id to the token used in web UI links.
// It never fails loudly: ok is false for any input that cannot be encoded.
func EncodeLegacyID(hex string, class TokenClass) (token string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			token, ok = "", false
		}
	}()
	enc, err := Encode(hex, class)
	if err != nil {
		return "", false
	}
	return enc.Token, true
}

// DecodeToken reverses Encode for tokens built from a known payload prefix.
func DecodeToken(token string) (Encoding, error) {
	b64, err := Transcode(token, ReducedAlphabet, FullAlphabet)
	if err != nil {
		return Encoding{}, err
	}
	raw, err := base64.RawStdEncoding.DecodeString(b64)
	if err != nil {
		return Encoding{}, fmt.Errorf("decode base64 %q: %w", b64, err)
	}

	payload := string(raw)
	var class TokenClass
	var dec string
	switch {
	case strings.HasPrefix(payload, ClassMessage.Prefix()):
		class, dec = ClassMessage, strings.TrimPrefix(payload, ClassMessage.Prefix())
	case strings.HasPrefix(payload, ClassThread.Prefix()):
		class, dec = ClassThread, strings.TrimPrefix(payload, ClassThread.Prefix())
	default:
		return Encoding{}, fmt.Errorf("%w: unknown payload %q", ErrInvalidIdentifierFormat, payload)
	}

	n, ok := new(big.Int).SetString(dec, 10)
	if !ok || n.Sign() < 0 {
		return Encoding{}, fmt.Errorf("%w: payload %q has no decimal id", ErrInvalidIdentifierFormat, payload)
	}
	return Encoding{
		Class:   class,
		Hex:     n.Text(16),
		Decimal: dec,
		Payload: payload,
		Base64:  b64,
		Token:   token,
	}, nil
}
