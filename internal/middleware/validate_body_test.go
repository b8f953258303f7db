package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RezaTaheri01/telegram-store-bot/internal/services"
)

type stubValidator struct {
	err    error
	schema string
}

func (s *stubValidator) Validate(name string, _ []byte) error {
	s.schema = name
	return s.err
}

// echoHandler writes back the body it receives.
var echoHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	w.Write(b)
})

func TestValidateBody_PassesAndRestoresBody(t *testing.T) {
	v := &stubValidator{}
	mw := ValidateBody(v, services.SchemaPurchase)(echoHandler)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"account_id":1}`))
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"account_id":1}` {
		t.Errorf("body not restored: %q", rec.Body.String())
	}
	if v.schema != services.SchemaPurchase {
		t.Errorf("validated against %q", v.schema)
	}
}

func TestValidateBody_Rejects(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"schema mismatch", fmt.Errorf("%w: missing product_id", services.ErrValidation), http.StatusBadRequest},
		{"validator broken", errors.New("unknown schema"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mw := ValidateBody(&stubValidator{err: tc.err}, services.SchemaPurchase)(echoHandler)
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestValidateBody_RealSchemas(t *testing.T) {
	v, err := services.NewValidator()
	if err != nil {
		t.Fatal(err)
	}
	mw := ValidateBody(v, services.SchemaPaymentCreate)(echoHandler)

	for body, want := range map[string]int{
		`{"account_id":42,"amount":"10"}`: http.StatusOK,
		`{"account_id":42,"amount":10}`:   http.StatusBadRequest,
		`not json`:                        http.StatusBadRequest,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: expected %d, got %d", body, want, rec.Code)
		}
	}
}

func TestValidateBody_TooLarge(t *testing.T) {
	mw := ValidateBody(&stubValidator{}, services.SchemaPurchase)(echoHandler)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", maxBodyBytes+1)))
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}
