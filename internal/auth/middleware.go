package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const runnerIDKey = "runner_id"

// JWTMiddleware validates bearer tokens and stores runner_id in locals.
func JWTMiddleware(secret string) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		return authenticate(c, bearerFromHeader(c.Get("Authorization")), secretBytes)
	}
}

// WebsocketMiddleware is JWTMiddleware for upgrade requests. Browsers cannot
// set headers on a websocket handshake, so the access_token query parameter
// is accepted as well.
func WebsocketMiddleware(secret string) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			token = strings.TrimSpace(c.Query("access_token"))
		}
		return authenticate(c, token, secretBytes)
	}
}

func authenticate(c *fiber.Ctx, token string, secret []byte) error {
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}
	claims, err := parseClaims(token, secret)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	c.Locals(runnerIDKey, claims.RunnerID)
	return c.Next()
}

// RunnerID returns the authenticated runner set by JWTMiddleware.
func RunnerID(c *fiber.Ctx) (string, error) {
	id, _ := c.Locals(runnerIDKey).(string)
	if id == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "runner not authenticated")
	}
	return id, nil
}

// WithRunner is a stand-in for JWTMiddleware in handler tests.
func WithRunner(runnerID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(runnerIDKey, runnerID)
		return c.Next()
	}
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
