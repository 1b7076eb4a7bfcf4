package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budgetsmart/internal/log"
)

func TestMiddleware_RequestID(t *testing.T) {
	m := NewMiddleware(nil, nil)

	var seen string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		if log.FromContext(r.Context()).Component() != log.ComponentHTTP {
			t.Error("request logger should be installed in context")
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	if !strings.HasPrefix(seen, "req_") {
		t.Errorf("expected generated request id, got %q", seen)
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header %q should echo %q", rec.Header().Get(RequestIDHeader), seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	req.Header.Set(RequestIDHeader, "client-abc.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "client-abc.1" {
		t.Errorf("expected incoming request id reused, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	req.Header.Set(RequestIDHeader, "bad id with spaces")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "bad id with spaces" {
		t.Error("malformed request id should be replaced")
	}

	metrics := m.GetMetrics()
	if metrics.TotalRequests != 3 || metrics.ServerErrors != 3 {
		t.Errorf("unexpected metrics %+v", metrics)
	}
}

func TestGenerateRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = true
	}
}
