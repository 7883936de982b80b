package utils

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/datashare/internal/types"
)

// SuccessResponse sends a standard success response
func SuccessResponse(c *fiber.Ctx, data interface{}, status int) error {
	return c.Status(status).JSON(data)
}

// ErrorResponse sends a standard error response
func ErrorResponse(c *fiber.Ctx, message string, status int, errorType string) error {
	return c.Status(status).JSON(ErrorResponseStruct{
		Status:    status,
		Message:   message,
		Ok:        false,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		URL:       c.OriginalURL(),
		Type:      errorType,
	})
}

// ConflictResponse sends a state conflict error (409). The client should
// re-fetch and reconcile before retrying.
func ConflictResponse(c *fiber.Ctx, message, errorType string) error {
	return c.Status(fiber.StatusConflict).JSON(ErrorResponseStruct{
		Status:    fiber.StatusConflict,
		Message:   message,
		Ok:        false,
		Conflict:  true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		URL:       c.OriginalURL(),
		Type:      errorType,
	})
}

// NotFoundResponse sends a 404 not found response
func NotFoundResponse(c *fiber.Ctx, message string) error {
	return ErrorResponse(c, message, fiber.StatusNotFound, "notfound")
}

// ErrorFromService translates a service error into the error envelope.
// Errors that are not CustomErrors are reported as internal failures without
// leaking their text.
func ErrorFromService(c *fiber.Ctx, err error) error {
	var ce *types.CustomError
	if !errors.As(err, &ce) {
		return ErrorResponse(c, "Internal server error", fiber.StatusInternalServerError, "internal")
	}
	if ce.Kind == types.KindConflict {
		return ConflictResponse(c, ce.Message, ce.Type)
	}
	return ErrorResponse(c, ce.Message, ce.Code, ce.Type)
}

// ErrorResponseStruct defines the schema for error responses
type ErrorResponseStruct struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Ok        bool   `json:"ok"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	Type      string `json:"type,omitempty"`
	Conflict  bool   `json:"conflict,omitempty"`
}

// MutationResponseStruct defines the schema for removal and purge responses
type MutationResponseStruct struct {
	Message   string `json:"message"`
	Ok        bool   `json:"ok"`
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
}

// MutationSuccessResponse sends a success response for mutations without a body
func MutationSuccessResponse(c *fiber.Ctx, id string) error {
	return c.Status(fiber.StatusOK).JSON(MutationResponseStruct{
		Message:   "Success",
		Ok:        true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ID:        id,
	})
}
