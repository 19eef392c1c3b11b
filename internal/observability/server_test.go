package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadinessFlipsAfterSetReady(t *testing.T) {
	s := NewServer(":0")

	status := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.server.Handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := status("/healthz"); got != http.StatusOK {
		t.Errorf("healthz = %d, want %d", got, http.StatusOK)
	}
	if got := status("/readyz"); got != http.StatusServiceUnavailable {
		t.Errorf("readyz before SetReady = %d, want %d", got, http.StatusServiceUnavailable)
	}

	s.SetReady()
	if got := status("/readyz"); got != http.StatusOK {
		t.Errorf("readyz after SetReady = %d, want %d", got, http.StatusOK)
	}
}
