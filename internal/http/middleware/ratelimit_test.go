package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c.Request = req

	if got := KeyByUserOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("ip key = %q", got)
	}
	c.Set(UserIDKey, "u123")
	if got := KeyByUserOrIP()(c); got != "user:u123" {
		t.Fatalf("user key = %q", got)
	}
}

func TestRateLimiter_ReuseAndSweep(t *testing.T) {
	rl := NewRateLimiter(1, 0, nil)
	if rl.burst != 1 {
		t.Fatalf("burst = %d", rl.burst)
	}
	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	first := rl.limiter("stale")
	if rl.limiter("stale") != first {
		t.Fatal("bucket not reused")
	}

	now = now.Add(rl.idle)
	rl.lookups = sweepEvery - 1
	if rl.limiter("stale") == first {
		t.Fatal("idle bucket survived the sweep")
	}
	if len(rl.buckets) != 1 {
		t.Fatalf("buckets = %d", len(rl.buckets))
	}
}

func TestRateLimiter_HandlerLimitsAndBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.0001, 1, func(*gin.Context) string { return "same" })

	r := gin.New()
	r.Use(RequestID())
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Replay") != "" {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	})
	r.Use(rl.Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(replay bool) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if replay {
			req.Header.Set("X-Replay", "1")
		}
		r.ServeHTTP(w, req)
		return w
	}

	if w := do(false); w.Code != http.StatusOK {
		t.Fatalf("first: %d", w.Code)
	}
	w := do(false)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("second: %d retry=%q", w.Code, w.Header().Get("Retry-After"))
	}
	if w := do(true); w.Code != http.StatusOK {
		t.Fatalf("replay: %d", w.Code)
	}
}
