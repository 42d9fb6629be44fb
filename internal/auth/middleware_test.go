package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestJWTMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/private", JWTMiddleware("secret"), func(c *fiber.Ctx) error {
		id, err := RunnerID(c)
		if err != nil {
			return err
		}
		return c.SendString(id)
	})

	svc := NewService("secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for bad token, got %d", resp.StatusCode)
	}

	token, _ := svc.signToken("runner-1", accessTokenTTL)
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok, got %d", resp.StatusCode)
	}
}

func TestWebsocketMiddlewareQueryToken(t *testing.T) {
	app := fiber.New()
	app.Get("/ws", WebsocketMiddleware("secret"), func(c *fiber.Ctx) error {
		id, err := RunnerID(c)
		if err != nil {
			return err
		}
		return c.SendString(id)
	})

	svc := NewService("secret", nil)
	token, _ := svc.signToken("runner-1", accessTokenTTL)

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/ws", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/ws?access_token=garbage", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for bad token, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok for query token, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok for header token, got %d", resp.StatusCode)
	}
}

func TestRunnerIDMissing(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		_, err := RunnerID(c)
		return err
	})
	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", resp.StatusCode)
	}
}

func TestParseBearer(t *testing.T) {
	if bearerFromHeader("Bearer abc") != "abc" {
		t.Fatalf("expected token")
	}
	if bearerFromHeader("bearer  abc ") != "abc" {
		t.Fatalf("expected case-insensitive scheme")
	}
	if bearerFromHeader("Basic abc") != "" || bearerFromHeader("") != "" {
		t.Fatalf("expected empty token")
	}
}
