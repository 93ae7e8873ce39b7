package handler

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// HeaderAdminToken carries the shared admin secret.
const HeaderAdminToken = "X-Admin-Token"

// AdminAuth rejects requests whose X-Admin-Token does not match token. An empty token
// locks the admin surface entirely.
func AdminAuth(token string) fiber.Handler {
	expected := []byte(strings.TrimSpace(token))

	return func(c *fiber.Ctx) error {
		given := []byte(strings.TrimSpace(c.Get(HeaderAdminToken)))
		if len(expected) == 0 || subtle.ConstantTimeCompare(given, expected) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid admin token")
		}
		return c.Next()
	}
}
