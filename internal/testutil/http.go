package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codr1/Kickabout/internal/api/authz"
)

// Envelope mirrors the JSON response wrapper for decoding in tests.
type Envelope struct {
	Data    json.RawMessage `json:"data"`
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Field   string          `json:"field"`
}

// DecodeData unmarshals the envelope's data into dst.
func (e Envelope) DecodeData(t *testing.T, dst any) {
	t.Helper()
	if err := json.Unmarshal(e.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", e.Data, err)
	}
}

// Serve sends one request through handler as user (nil for anonymous) and
// decodes the envelope.
func Serve(t *testing.T, handler http.Handler, method, target, body string, user *authz.AuthUser) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if user != nil {
		req = req.WithContext(authz.ContextWithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env Envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}
