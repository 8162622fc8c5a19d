package errcodes

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestPayloadFor(t *testing.T) {
	t.Parallel()
	h := NewHandler()

	t.Run("custom errors keep their code and status", func(t *testing.T) {
		httpCode, payload := h.payloadFor(NotFound("Library"))
		assert.Equal(t, http.StatusNotFound, httpCode)
		errPayload := payload["error"].(map[string]interface{})
		assert.Equal(t, "not_found", errPayload["code"])
		assert.Equal(t, "Library not found.", errPayload["message"])
		assert.Equal(t, http.StatusNotFound, errPayload["status_code"])
	})

	t.Run("conflicts pass the message through", func(t *testing.T) {
		httpCode, payload := h.payloadFor(Conflict("Library path overlaps an existing library."))
		assert.Equal(t, http.StatusConflict, httpCode)
		errPayload := payload["error"].(map[string]interface{})
		assert.Equal(t, "conflict", errPayload["code"])
		assert.Equal(t, "Library path overlaps an existing library.", errPayload["message"])
	})

	t.Run("echo errors are snake-cased into codes", func(t *testing.T) {
		httpCode, payload := h.payloadFor(echo.NewHTTPError(http.StatusMethodNotAllowed, "Method Not Allowed"))
		assert.Equal(t, http.StatusMethodNotAllowed, httpCode)
		errPayload := payload["error"].(map[string]interface{})
		assert.Equal(t, "method_not_allowed", errPayload["code"])
	})

	t.Run("unknown errors become internal server errors", func(t *testing.T) {
		httpCode, payload := h.payloadFor(assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, httpCode)
		errPayload := payload["error"].(map[string]interface{})
		assert.Equal(t, "internal_server_error", errPayload["code"])
		assert.Equal(t, "Internal Server Error", errPayload["message"])
	})
}
