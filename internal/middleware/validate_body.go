package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/RezaTaheri01/telegram-store-bot/internal/services"
)

const maxBodyBytes = 1 << 20

// BodyValidator checks a raw request body against a named schema.
type BodyValidator interface {
	Validate(name string, body []byte) error
}

// ValidateBody rejects a request whose JSON body does not match schema.
// It reads the body, then replaces r.Body so downstream handlers can
// re-read it.
func ValidateBody(v BodyValidator, schema string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				writeError(w, http.StatusBadRequest, "failed to read body")
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := v.Validate(schema, body); err != nil {
				if errors.Is(err, services.ErrValidation) {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				writeError(w, http.StatusInternalServerError, "validation unavailable")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
