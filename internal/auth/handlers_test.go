package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
	"golang.org/x/crypto/bcrypt"
)

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s: %v", path, err)
	}
	return resp
}

func TestAuthHandlersRegisterLoginVerify(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	createdAt := time.Now()
	mock.ExpectQuery(`INSERT INTO runners`).
		WithArgs(pgxmock.AnyArg(), "runner@example.com", "Runner", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	svc := NewService("test-secret", mock)
	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), svc)

	resp := postJSON(t, app, "/auth/register", RegisterRequest{Email: "runner@example.com", DisplayName: "Runner", Password: "pass"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d", resp.StatusCode)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.MinCost)
	mock.ExpectQuery(`SELECT id, email, display_name, password_hash, created_at`).
		WithArgs("runner@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "display_name", "password_hash", "created_at"}).
			AddRow("runner-1", "runner@example.com", "Runner", string(hash), createdAt))

	resp = postJSON(t, app, "/auth/login", LoginRequest{Email: "runner@example.com", Password: "pass"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var tokens TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/jwt/verify", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status: %v", err)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["runner_id"] != "runner-1" {
		t.Fatalf("expected runner-1, got %v", body)
	}
}

func TestAuthRegisterBadPayload(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), NewService("secret", nil))

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = postJSON(t, app, "/auth/register", RegisterRequest{Email: "a@b.c"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", resp.StatusCode)
	}
}

func TestAuthRegisterServiceError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	mock.ExpectQuery(`INSERT INTO runners`).
		WithArgs(pgxmock.AnyArg(), "a@b.c", "a", pgxmock.AnyArg()).
		WillReturnError(errors.New("duplicate key"))

	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), NewService("secret", mock))
	resp := postJSON(t, app, "/auth/register", RegisterRequest{Email: "a@b.c", DisplayName: "a", Password: "p"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAuthLoginBadRequest(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), NewService("secret", nil))
	resp := postJSON(t, app, "/auth/login", LoginRequest{Email: "a@b.c"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAuthLoginUnauthorized(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	mock.ExpectQuery(`SELECT id, email, display_name, password_hash, created_at`).
		WithArgs("a@b.c").
		WillReturnError(errors.New("no rows"))

	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), NewService("secret", mock))
	resp := postJSON(t, app, "/auth/login", LoginRequest{Email: "a@b.c", Password: "p"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthVerifyMissingOrInvalidBearer(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), NewService("secret", nil))

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/auth/jwt/verify", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/jwt/verify", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthWithoutDatabase(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), NewService("secret", nil))

	resp := postJSON(t, app, "/auth/register", RegisterRequest{Email: "a@b.c", DisplayName: "a", Password: "p"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for register, got %d", resp.StatusCode)
	}
	resp = postJSON(t, app, "/auth/login", LoginRequest{Email: "a@b.c", Password: "p"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for login, got %d", resp.StatusCode)
	}
}
