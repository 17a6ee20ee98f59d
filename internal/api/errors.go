package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	applog "github.com/MagnunAVF/mail-deeplink/internal/logger"
)

type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func apiError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

var (
	errNoLink        = apiError(fiber.StatusNotFound, "no_link_available", "No link available for this record")
	errRecordMissing = apiError(fiber.StatusNotFound, "record_not_found", "Mail record not found")
	errAccountsOff   = apiError(fiber.StatusServiceUnavailable, "accounts_unavailable", "Account registry is not configured")
)

// errorHandler renders every error as {"error", "code"}.
func errorHandler(c *fiber.Ctx, err error) error {
	var ae *APIError
	if errors.As(err, &ae) {
		return c.Status(ae.Status).JSON(fiber.Map{"error": ae.Message, "code": ae.Code})
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message, "code": "http_error"})
	}
	applog.FromContext(c.UserContext()).Error("unhandled error", "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal error", "code": "internal"})
}
