package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

type contextKey string

const ctxClientKey contextKey = "api_client"

// APIKeyRepo is the interface used by API key auth middleware.
type APIKeyRepo interface {
	FindByKeyHash(ctx context.Context, keyHash string) (*models.APIKey, error)
}

// APIKeyAuth authenticates requests by hashing the Bearer token (SHA-256)
// and looking it up in api_keys. On success the key is set into the
// request context.
func APIKeyAuth(repo APIKeyRepo, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing or malformed Authorization header")
				return
			}

			key, err := repo.FindByKeyHash(r.Context(), HashKey(raw))
			if err != nil {
				if !errors.Is(err, models.ErrNotFound) {
					log.Error("api key lookup failed", "error", err)
					writeError(w, http.StatusInternalServerError, "authentication unavailable")
					return
				}
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), key)))
		})
	}
}

// ClientFromCtx returns the authenticated API key or nil.
func ClientFromCtx(ctx context.Context) *models.APIKey {
	k, _ := ctx.Value(ctxClientKey).(*models.APIKey)
	return k
}

// WithClient returns a context carrying the given API key.
func WithClient(ctx context.Context, k *models.APIKey) context.Context {
	return context.WithValue(ctx, ctxClientKey, k)
}

// HashKey returns the stored form of a raw API key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
