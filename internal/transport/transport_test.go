package transport

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/shiptrack/internal/observability"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/bad", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadRequest, "validation error: bad input")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("dial tcp 10.0.0.1:5432: connection refused")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/bad", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.JSONEq(t, `{"error":"validation error: bad input"}`, string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.NotContains(t, string(body), "10.0.0.1", "internal errors must not leak")
}

func TestRequestContext(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Use(RequestContext())
	app.Get("/", func(c *fiber.Ctx) error {
		id, _ := observability.RequestIDFromContext(c.UserContext())
		return c.SendString(id)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "req-123", string(body))
	require.Equal(t, "req-123", resp.Header.Get(fiber.HeaderXRequestID))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	require.NotEmpty(t, string(body))
	require.Equal(t, string(body), resp.Header.Get(fiber.HeaderXRequestID))
}
