package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute})
	t.Cleanup(rl.Stop)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowWindow(t *testing.T) {
	rl, now := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("fourth request in the window allowed")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other client throttled")
	}

	*now = now.Add(time.Minute)
	if !rl.Allow("10.0.0.1") {
		t.Error("request after window reset rejected")
	}
	if got := rl.GetMetrics(); got.Rejected != 1 || got.ClientCount != 2 {
		t.Errorf("metrics = %+v", got)
	}
}

// A client hammering the endpoint must not keep its window open forever.
func TestAllowWindowDoesNotSlide(t *testing.T) {
	rl, now := newTestLimiter(t, 2)
	for i := 0; i < 10; i++ {
		rl.Allow("c")
		*now = now.Add(10 * time.Second)
	}
	if !rl.Allow("c") {
		t.Error("window never reset under constant traffic")
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(t, 5)
	rl.Allow("old")
	*now = now.Add(11 * time.Minute)
	rl.Allow("fresh")

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Errorf("removed %d entries, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients = %d", rl.ActiveClients())
	}
}

func TestMiddlewareOnlyLimitsPOST(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodPost, http.StatusNoContent},
		{http.MethodPost, http.StatusTooManyRequests},
		{http.MethodGet, http.StatusNoContent},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/budget/save", nil))
		if rec.Code != tt.want {
			t.Errorf("%s: status %d, want %d", tt.method, rec.Code, tt.want)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}
