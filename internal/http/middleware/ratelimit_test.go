package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fn := KeyByUserOrIP()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.7:4711"
	if got := fn(c); got != "ip:203.0.113.7" {
		t.Fatalf("anonymous key = %q", got)
	}

	c.Set("userID", "abc123")
	if got := fn(c); got != "user:abc123" {
		t.Fatalf("identified key = %q", got)
	}

	// Non-string or empty identities fall back to IP.
	c.Set("userID", 42)
	if got := fn(c); got != "ip:203.0.113.7" {
		t.Fatalf("non-string identity key = %q", got)
	}
}

func TestRateLimiter_ScopesAreIndependent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(func(*gin.Context) string { return "user:u1" })

	r := gin.New()
	r.POST("/reports/generate", rl.Scope("reports", 0, 1), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/queries", rl.Scope("api", 0, 3), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	do := func(method, path string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w.Code
	}

	// Exhaust the report budget: one token, no refill.
	if code := do(http.MethodPost, "/reports/generate"); code != http.StatusOK {
		t.Fatalf("first generate -> %d", code)
	}
	if code := do(http.MethodPost, "/reports/generate"); code != http.StatusTooManyRequests {
		t.Fatalf("second generate -> %d, want 429", code)
	}

	// The read scope still has its own tokens for the same caller.
	for i := 0; i < 3; i++ {
		if code := do(http.MethodGet, "/queries"); code != http.StatusOK {
			t.Fatalf("read %d -> %d despite separate scope", i, code)
		}
	}
	if code := do(http.MethodGet, "/queries"); code != http.StatusTooManyRequests {
		t.Fatalf("read over budget -> %d, want 429", code)
	}
}

func TestRateLimiter_DenyBodyAndBurstCoercion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(func(*gin.Context) string { return "ip:x" })

	r := gin.New()
	// Request-ID middleware stand-in so the envelope carries an id.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Next()
	})
	// burst 0 must behave as burst 1.
	r.GET("/", rl.Scope("api", 0, 0), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request -> %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request -> %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q", got)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["code"] != "rate_limited" || body["message"] != "rate limit exceeded" {
		t.Fatalf("unexpected envelope: %v", body)
	}
	if body["request_id"] != "rid-1" {
		t.Fatalf("request id missing from envelope: %v", body)
	}
}

func TestRateLimiter_ReplayBypassSkipsBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(func(*gin.Context) string { return "user:u1" })

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ctxKeyRateBypass, true)
		c.Next()
	})
	r.POST("/reports/generate", rl.Scope("reports", 0, 1), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Far more requests than the budget holds; replays never consume it.
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reports/generate", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("replay %d -> %d", i, w.Code)
		}
	}
}

func TestIsRateBypass_Unset_False(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if IsRateBypass(c) {
		t.Fatal("bypass reported without marker")
	}
	c.Set(ctxKeyRateBypass, "yes") // wrong type
	if IsRateBypass(c) {
		t.Fatal("bypass reported for non-bool marker")
	}
}

func TestRateLimiter_SweepEvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(func(*gin.Context) string { return "" })

	rl.take("api", "user:old", 1, 1)
	rl.take("api", "user:fresh", 1, 1)
	if len(rl.buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(rl.buckets))
	}

	// Age one bucket past the TTL and force the sweep due.
	rl.mu.Lock()
	rl.buckets["api|user:old"].lastSeen = time.Now().Add(-bucketIdleTTL - time.Second)
	rl.nextSweep = time.Now().Add(-time.Second)
	rl.mu.Unlock()

	rl.take("api", "user:third", 1, 1)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.buckets["api|user:old"]; ok {
		t.Fatal("idle bucket survived the sweep")
	}
	if _, ok := rl.buckets["api|user:fresh"]; !ok {
		t.Fatal("fresh bucket was evicted")
	}
}
