package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestWithRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	if got := RequestIDFromContext(ctx); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := RequestIDFromContext(WithRequestID(context.Background(), "")); got != "" {
		t.Fatalf("empty id stored: %q", got)
	}
}

func serveRequestID(t *testing.T, header, inbound string) (ctxID, respID string) {
	t.Helper()
	h := RequestID(header)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	name := header
	if name == "" {
		name = "X-Request-Id"
	}
	if inbound != "" {
		req.Header.Set(name, inbound)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return ctxID, rec.Header().Get(name)
}

func TestRequestID_GeneratesUUID(t *testing.T) {
	ctxID, respID := serveRequestID(t, "", "")
	if ctxID == "" || ctxID != respID {
		t.Fatalf("ctx=%q resp=%q", ctxID, respID)
	}
	if _, err := uuid.Parse(ctxID); err != nil {
		t.Fatalf("generated id %q is not a uuid: %v", ctxID, err)
	}
}

func TestRequestID_PropagatesValid(t *testing.T) {
	ctxID, respID := serveRequestID(t, "X-Correlation-Id", "upstream-123")
	if ctxID != "upstream-123" || respID != "upstream-123" {
		t.Fatalf("ctx=%q resp=%q", ctxID, respID)
	}
}

func TestRequestID_ReplacesInvalid(t *testing.T) {
	for _, in := range []string{"has space", "tab\tid", strings.Repeat("x", maxRequestIDLen+1), "ünïcode"} {
		ctxID, _ := serveRequestID(t, "", in)
		if ctxID == in {
			t.Errorf("invalid id %q was trusted", in)
		}
		if _, err := uuid.Parse(ctxID); err != nil {
			t.Errorf("replacement for %q is not a uuid: %q", in, ctxID)
		}
	}
}

func TestRequestID_UniquePerRequest(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, _ := serveRequestID(t, "", "")
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
