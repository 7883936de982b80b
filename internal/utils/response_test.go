package utils

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/datashare/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelopeFor(t *testing.T, err error) (int, ErrorResponseStruct) {
	t.Helper()
	app := fiber.New()
	app.Get("/x", func(c *fiber.Ctx) error { return ErrorFromService(c, err) })

	resp, testErr := app.Test(httptest.NewRequest("GET", "/x?a=1", nil))
	require.NoError(t, testErr)
	defer resp.Body.Close()

	var body ErrorResponseStruct
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestErrorFromService(t *testing.T) {
	status, body := envelopeFor(t, types.NewConflictError("proposal.state.conflict", "already evaluated"))
	assert.Equal(t, fiber.StatusConflict, status)
	assert.True(t, body.Conflict)
	assert.False(t, body.Ok)
	assert.Equal(t, "proposal.state.conflict", body.Type)
	assert.Equal(t, "/x?a=1", body.URL)
	assert.NotEmpty(t, body.Timestamp)

	status, body = envelopeFor(t, types.NewAuthorizationError("project.authorization.read", "private"))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.False(t, body.Conflict)
	assert.Equal(t, "private", body.Message)

	status, body = envelopeFor(t, types.NewDependencyError("dataset.artifact.write", errors.New("disk")))
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "dataset.artifact.write", body.Type)

	status, body = envelopeFor(t, errors.New("secret detail"))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", body.Message)
}
