// Package api exposes link resolution and the account registry over HTTP.
package api

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/MagnunAVF/mail-deeplink/internal"
	"github.com/MagnunAVF/mail-deeplink/internal/accounts"
	applog "github.com/MagnunAVF/mail-deeplink/internal/logger"
	"github.com/MagnunAVF/mail-deeplink/internal/store"
)

type RecordFinder interface {
	FindRecord(ctx context.Context, id string) (*internal.MailRecord, error)
}

type AccountRegistry interface {
	Index(ctx context.Context, address string) (*int, error)
	SetIndex(ctx context.Context, address string, index int) error
	Delete(ctx context.Context, address string) error
}

type EventPublisher interface {
	PublishLinkOpen(ctx context.Context, event internal.LinkOpenEvent) error
}

// Server wires the resolver to its collaborators. Records, Accounts and
// Events are optional; the matching endpoints degrade when they are nil.
type Server struct {
	Resolver       *internal.Resolver
	Records        RecordFinder
	Accounts       AccountRegistry
	Events         EventPublisher
	PublishTimeout time.Duration
	Now            func() time.Time
}

func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "link-service",
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(applog.FiberMiddleware())
	app.Use(cors.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Post("/links/resolve", s.handleResolve)
	app.Get("/records/:id/link", s.handleRecordLink)
	app.Get("/records/:id/open", s.handleRecordOpen)
	app.Get("/accounts/:address/index", s.handleGetAccountIndex)
	app.Put("/accounts/:address/index", s.handleSetAccountIndex)
	app.Delete("/accounts/:address/index", s.handleDeleteAccountIndex)
	return app
}

type resolveRequest struct {
	internal.Record
	// Account is the mailbox address, used to look up the account index
	// when account_index is not given.
	Account string `json:"account"`
}

func (s *Server) handleResolve(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(fiber.StatusBadRequest, "invalid_request", "Invalid request")
	}
	if req.AccountIndex != nil && *req.AccountIndex < 0 {
		return apiError(fiber.StatusBadRequest, "invalid_account_index", "account_index must not be negative")
	}
	rec := req.Record
	if rec.AccountIndex == nil {
		rec.AccountIndex = s.lookupIndex(c.UserContext(), req.Account)
	}

	res, err := s.Resolver.Resolve(rec)
	if err != nil {
		return errNoLink
	}
	return c.JSON(res)
}

func (s *Server) handleRecordLink(c *fiber.Ctx) error {
	res, _, err := s.resolveStored(c)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleRecordOpen(c *fiber.Ctx) error {
	res, recordID, err := s.resolveStored(c)
	if err != nil {
		return err
	}

	userAgent := c.Get(fiber.HeaderUserAgent)
	if userAgent == "" {
		userAgent = "Unknown"
	}
	s.publishOpen(c.UserContext(), internal.LinkOpenEvent{
		RecordID:  recordID,
		Tier:      res.Tier,
		Source:    res.Source,
		Timestamp: s.now(),
		UserAgent: strings.Clone(userAgent),
	})
	return c.Redirect(res.URL, fiber.StatusFound)
}

// resolveStored loads the record named by :id and resolves its link. The
// returned id is safe to use after the handler returns.
func (s *Server) resolveStored(c *fiber.Ctx) (internal.Resolution, string, error) {
	if s.Records == nil {
		return internal.Resolution{}, "", errRecordMissing
	}
	id := strings.Clone(c.Params("id"))
	ctx := c.UserContext()

	mr, err := s.Records.FindRecord(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return internal.Resolution{}, id, errRecordMissing
	}
	if err != nil {
		return internal.Resolution{}, id, err
	}

	res, err := s.Resolver.Resolve(mr.LinkRecord(s.lookupIndex(ctx, mr.AccountAddress)))
	if err != nil {
		return res, id, errNoLink
	}
	return res, id, nil
}

// lookupIndex returns the registered account index, or nil when none is
// known. Registry failures only cost the /u/<n>/ scoping.
func (s *Server) lookupIndex(ctx context.Context, address string) *int {
	if s.Accounts == nil || strings.TrimSpace(address) == "" {
		return nil
	}
	idx, err := s.Accounts.Index(ctx, address)
	if err != nil {
		applog.FromContext(ctx).Warn("account index lookup failed", "err", err)
		return nil
	}
	return idx
}

func (s *Server) publishOpen(ctx context.Context, event internal.LinkOpenEvent) {
	if s.Events == nil {
		return
	}
	log := applog.FromContext(ctx)
	timeout := s.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.Events.PublishLinkOpen(pubCtx, event); err != nil {
			log.Error("publish link open event failed", "record_id", event.RecordID, "err", err)
		}
	}()
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Server) addressParam(c *fiber.Ctx) (string, error) {
	addr, err := url.PathUnescape(c.Params("address"))
	if err != nil {
		return "", apiError(fiber.StatusBadRequest, "invalid_address", "Invalid mailbox address")
	}
	return addr, nil
}

func (s *Server) handleGetAccountIndex(c *fiber.Ctx) error {
	if s.Accounts == nil {
		return errAccountsOff
	}
	addr, err := s.addressParam(c)
	if err != nil {
		return err
	}
	idx, err := s.Accounts.Index(c.UserContext(), addr)
	if err != nil {
		return registryError(err)
	}
	if idx == nil {
		return apiError(fiber.StatusNotFound, "account_index_not_found", "No account index registered")
	}
	return c.JSON(fiber.Map{"address": addr, "index": *idx})
}

func (s *Server) handleSetAccountIndex(c *fiber.Ctx) error {
	if s.Accounts == nil {
		return errAccountsOff
	}
	addr, err := s.addressParam(c)
	if err != nil {
		return err
	}
	var req struct {
		Index *int `json:"index"`
	}
	if err := c.BodyParser(&req); err != nil || req.Index == nil {
		return apiError(fiber.StatusBadRequest, "invalid_request", "index is required")
	}
	if err := s.Accounts.SetIndex(c.UserContext(), addr, *req.Index); err != nil {
		return registryError(err)
	}
	return c.JSON(fiber.Map{"address": addr, "index": *req.Index})
}

func (s *Server) handleDeleteAccountIndex(c *fiber.Ctx) error {
	if s.Accounts == nil {
		return errAccountsOff
	}
	addr, err := s.addressParam(c)
	if err != nil {
		return err
	}
	if err := s.Accounts.Delete(c.UserContext(), addr); err != nil {
		return registryError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func registryError(err error) error {
	switch {
	case errors.Is(err, accounts.ErrInvalidAddress):
		return apiError(fiber.StatusBadRequest, "invalid_address", "Invalid mailbox address")
	case errors.Is(err, accounts.ErrInvalidIndex):
		return apiError(fiber.StatusBadRequest, "invalid_account_index", "index must not be negative")
	default:
		return err
	}
}
