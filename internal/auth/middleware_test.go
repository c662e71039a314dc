package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-booking/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "club-admin-secret"

func signed(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func adminClaims(exp time.Time) Claims {
	return Claims{
		Email: "admin@example.org",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func protectedServer(t *testing.T) http.Handler {
	t.Helper()
	verify, err := NewVerifier(context.Background(), config.AuthConfig{JWTSecret: testSecret})
	require.NoError(t, err)
	return Middleware(verify, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserID(r.Context()) + "|" + Email(r.Context())))
	}))
}

func call(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/bookings/bk-1", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ValidToken(t *testing.T) {
	token := signed(t, jwt.SigningMethodHS256, []byte(testSecret), adminClaims(time.Now().Add(time.Hour)))

	rec := call(protectedServer(t), "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1|admin@example.org", rec.Body.String())
}

func TestMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header func(t *testing.T) string
	}{
		{"missing header", func(t *testing.T) string { return "" }},
		{"wrong scheme", func(t *testing.T) string { return "Basic abc" }},
		{"expired", func(t *testing.T) string {
			return "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(testSecret), adminClaims(time.Now().Add(-time.Minute)))
		}},
		{"wrong secret", func(t *testing.T) string {
			return "Bearer " + signed(t, jwt.SigningMethodHS256, []byte("other"), adminClaims(time.Now().Add(time.Hour)))
		}},
		{"other algorithm", func(t *testing.T) string {
			return "Bearer " + signed(t, jwt.SigningMethodHS512, []byte(testSecret), adminClaims(time.Now().Add(time.Hour)))
		}},
		{"no expiry", func(t *testing.T) string {
			return "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-1"}})
		}},
	}

	h := protectedServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(h, tt.header(t))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestNewVerifier_NotConfigured(t *testing.T) {
	_, err := NewVerifier(context.Background(), config.AuthConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestUserID_Empty(t *testing.T) {
	assert.Empty(t, UserID(context.Background()))
	assert.Empty(t, Email(context.Background()))
}
