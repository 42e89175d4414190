package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	identityapp "github.com/argsms/rangepool/internal/identity/app"
	identitydomain "github.com/argsms/rangepool/internal/identity/domain"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const AdminCapabilityContextKey = ContextKey("adminCapability")

// RequestLogger logs HTTP requests using slog.
func RequestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			requestID := chiMiddleware.GetReqID(r.Context())

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", requestID),
			)
		}
		return http.HandlerFunc(fn)
	}
}

// adminClaims is the JWT payload admin tokens carry: the chat identity of
// the acting administrator.
type adminClaims struct {
	ChatID int64 `json:"chat_id"`
	jwt.RegisteredClaims
}

// AdminAuth authenticates admin endpoints. The Bearer token proves who is
// calling; the capability minted by identity.Authorize proves the caller's
// admin flag is set right now — a revoked admin fails here even with a valid
// token.
func AdminAuth(identity *identityapp.IdentityService, secret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "Authorization header missing", "path", r.URL.Path)
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.WarnContext(r.Context(), "invalid Authorization header format")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims := &adminClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.WarnContext(r.Context(), "admin token validation failed", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			cap, err := identity.Authorize(r.Context(), claims.ChatID)
			if err != nil {
				if errors.Is(err, identitydomain.ErrNotAdmin) || errors.Is(err, identitydomain.ErrUserNotFound) {
					logger.WarnContext(r.Context(), "admin authorization refused", "chat_id", claims.ChatID)
					http.Error(w, "Admin privileges required", http.StatusForbidden)
					return
				}
				http.Error(w, "Authorization check failed", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), AdminCapabilityContextKey, cap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// capabilityFromContext extracts the admin capability placed by AdminAuth.
func capabilityFromContext(ctx context.Context) (identitydomain.AdminCapability, bool) {
	cap, ok := ctx.Value(AdminCapabilityContextKey).(identitydomain.AdminCapability)
	return cap, ok
}
