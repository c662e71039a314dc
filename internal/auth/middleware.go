package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	emailKey  contextKey = "email"
)

// ErrNotConfigured is returned when neither a JWT secret nor an OIDC issuer
// is set.
var ErrNotConfigured = errors.New("auth: no JWT secret or OIDC issuer configured")

// TokenVerifier turns a raw bearer token into claims.
type TokenVerifier func(ctx context.Context, rawToken string) (*Claims, error)

// NewVerifier picks OIDC verification when an issuer is configured and
// HS256 with the shared secret otherwise.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (TokenVerifier, error) {
	if cfg.OIDCIssuer != "" {
		provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
		}
		verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
		return func(ctx context.Context, rawToken string) (*Claims, error) {
			idToken, err := verifier.Verify(ctx, rawToken)
			if err != nil {
				return nil, err
			}
			var claims Claims
			if err := idToken.Claims(&claims); err != nil {
				return nil, fmt.Errorf("failed to parse claims: %w", err)
			}
			claims.Subject = idToken.Subject
			return &claims, nil
		}, nil
	}
	if cfg.JWTSecret != "" {
		secret := []byte(cfg.JWTSecret)
		return func(_ context.Context, rawToken string) (*Claims, error) {
			return ParseHS256(rawToken, secret)
		}, nil
	}
	return nil, ErrNotConfigured
}

// Middleware rejects requests without a valid bearer token and puts the
// caller's id and email into the request context.
func Middleware(verify TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			claims, err := verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
			ctx = context.WithValue(ctx, emailKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}

func Email(ctx context.Context) string {
	if email, ok := ctx.Value(emailKey).(string); ok {
		return email
	}
	return ""
}
