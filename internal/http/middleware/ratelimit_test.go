package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(rate float64, burst int, now *time.Time) *RateLimiter {
	rl := NewRateLimiter(rate, burst)
	rl.now = func() time.Time { return *now }
	return rl
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	now := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(1, 2, &now)
	defer rl.Close()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys have independent buckets")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(1, 1, &now)
	defer rl.Close()

	rl.Allow("a")
	now = now.Add(time.Minute)
	rl.Allow("b")
	now = now.Add(10 * time.Minute)

	assert.Equal(t, 1, rl.evict(10*time.Minute))
	assert.Len(t, rl.buckets, 1)
}

func TestRateLimitSeparatesClinics(t *testing.T) {
	now := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(0, 1, &now)
	defer rl.Close()
	handler := RateLimit(rl)(okHandler(nil))

	send := func(clinic string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Clinic-Id", clinic)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("clinic-1"))
	assert.Equal(t, http.StatusTooManyRequests, send("clinic-1"))
	assert.Equal(t, http.StatusOK, send("clinic-2"))
}
