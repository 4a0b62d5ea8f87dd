package middleware

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"scheduler_server/adapter/out/memstore"
	"scheduler_server/core/domain"
	"scheduler_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func newAuthApp() *fiber.App {
	profiles := memstore.NewProfileStore(&domain.Profile{ID: "u1", Email: "u1@example.com", Timezone: "Asia/Kolkata"})
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(RequestID())
	app.Get("/me", JWTAuth(testSecret, profiles), func(c *fiber.Ctx) error {
		identity, ok := IdentityFrom(c)
		if !ok {
			return errors.New("identity missing")
		}
		return c.JSON(identity)
	})
	return app
}

func decodeError(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestJWTAuth(t *testing.T) {
	valid := jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name   string
		header string
		query  string
		status int
		code   string
	}{
		{"missing token", "", "", 401, apperr.CodeUnauthorized},
		{"valid header", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), valid), "", 200, ""},
		{"valid query token", "", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), valid), 200, ""},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), valid), "", 401, apperr.CodeInvalidToken},
		{"wrong algorithm", "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), valid), "", 401, apperr.CodeInvalidToken},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}), "", 401, apperr.CodeInvalidToken},
		{"unknown user", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "ghost"}), "", 401, apperr.CodeUnauthorized},
		{"no subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"email": "x@example.com"}), "", 401, apperr.CodeInvalidToken},
	}

	app := newAuthApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/me"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest("GET", target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.status == 200 {
				var identity domain.Identity
				if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
					t.Fatalf("decode identity: %v", err)
				}
				if identity.ID != "u1" || identity.Timezone != "Asia/Kolkata" {
					t.Errorf("unexpected identity %+v", identity)
				}
				return
			}
			if got := decodeError(t, resp.Body); got.Error.Code != tt.code || got.RequestID == "" {
				t.Errorf("expected code %s with request id, got %+v", tt.code, got)
			}
		})
	}
}

func TestErrorHandlerHidesInternalDetail(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Get("/db", func(c *fiber.Ctx) error {
		return apperr.DatabaseError("insert booking", errors.New("pq: relation does not exist"))
	})
	app.Get("/conflict", func(c *fiber.Ctx) error {
		return apperr.Conflict(nil)
	})

	resp, _ := app.Test(httptest.NewRequest("GET", "/db", nil))
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if got := decodeError(t, resp.Body); got.Error.Message != "An unexpected error occurred." || got.Success {
		t.Errorf("unexpected body %+v", got)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/conflict", nil))
	if resp.StatusCode != 409 {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if got := decodeError(t, resp.Body); got.Error.Code != apperr.CodeConflict || got.Error.Message != apperr.MsgSlotTaken {
		t.Errorf("unexpected body %+v", got)
	}
}

func TestRecover(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(Recover())
	app.Get("/panic", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
}

type failingCounter struct{ calls int }

func (f *failingCounter) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	f.calls++
	return 0, errors.New("redis: connection refused")
}

type mapCounter map[string]int64

func (m mapCounter) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	m[key]++
	return m[key], nil
}

func limitedApp(rl *RateLimiter) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Get("/chat", rl.Handler(), func(c *fiber.Ctx) error { return c.SendStatus(204) })
	return app
}

func TestRateLimiter(t *testing.T) {
	tests := []struct {
		name    string
		counter WindowCounter
	}{
		{"local window", nil},
		{"shared counter", mapCounter{}},
		{"counter failure falls back", &failingCounter{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := limitedApp(NewRateLimiter("chat", 2, time.Minute, tt.counter))

			statuses := make([]int, 3)
			for i := range statuses {
				resp, err := app.Test(httptest.NewRequest("GET", "/chat", nil))
				if err != nil {
					t.Fatalf("request failed: %v", err)
				}
				statuses[i] = resp.StatusCode
				if i == 2 && resp.Header.Get("Retry-After") == "" {
					t.Error("expected Retry-After header")
				}
			}
			if statuses[0] != 204 || statuses[1] != 204 || statuses[2] != 429 {
				t.Errorf("expected 204, 204, 429, got %v", statuses)
			}
		})
	}
}
