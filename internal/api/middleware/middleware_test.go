package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"mallify-hub/internal/model"
	"mallify-hub/internal/repository"
	jwtutil "mallify-hub/pkg/jwt"
)

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, role, boutiqueID string, ttl time.Duration) string {
	t.Helper()
	token, err := jwtutil.GenerateAccessToken(jwtutil.NewClaims("user-1", role, boutiqueID, ttl), key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func serve(router *gin.Engine, method, target string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	key := newTestKey(t)
	router := gin.New()
	router.GET("/private", JWTAuth(&key.PublicKey), RequireRole("admin", "boutique_owner"), func(c *gin.Context) {
		claims, _ := GetClaims(c)
		c.String(http.StatusOK, claims.BoutiqueID)
	})

	if w := serve(router, http.MethodGet, "/private", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	expired := signToken(t, key, "admin", "", -time.Minute)
	w := serve(router, http.MethodGet, "/private", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) })
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "token expired") {
		t.Fatalf("expected expired token rejection, got %d %s", w.Code, w.Body.String())
	}

	customer := signToken(t, key, "customer", "", time.Hour)
	if w := serve(router, http.MethodGet, "/private", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+customer) }); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", w.Code)
	}

	owner := signToken(t, key, "boutique_owner", "b-1", time.Hour)
	w = serve(router, http.MethodGet, "/private?access_token="+owner, nil)
	if w.Code != http.StatusOK || w.Body.String() != "b-1" {
		t.Fatalf("expected query token to authenticate, got %d %s", w.Code, w.Body.String())
	}
}

func TestOptionalJWTAuth_NeverRejects(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	key := newTestKey(t)
	router := gin.New()
	router.GET("/public", OptionalJWTAuth(&key.PublicKey), func(c *gin.Context) {
		if _, ok := GetClaims(c); ok {
			c.String(http.StatusOK, "authed")
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	if w := serve(router, http.MethodGet, "/public", func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") }); w.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous for bad token, got %q", w.Body.String())
	}
	token := signToken(t, key, "admin", "", time.Hour)
	if w := serve(router, http.MethodGet, "/public", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }); w.Body.String() != "authed" {
		t.Fatalf("expected authed for valid token, got %q", w.Body.String())
	}
}

func TestInternalTokenAuth(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/internal", InternalTokenAuth("s3cret", true), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	if w := serve(router, http.MethodGet, "/internal", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(router, http.MethodGet, "/internal", func(r *http.Request) { r.Header.Set(InternalTokenHeader, "s3cret") }); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with header token, got %d", w.Code)
	}
	if w := serve(router, http.MethodGet, "/internal", func(r *http.Request) { r.RemoteAddr = "127.0.0.1:5050" }); w.Code != http.StatusNoContent {
		t.Fatalf("expected loopback bypass, got %d", w.Code)
	}
}

func TestInternalTokenAuth_IgnoresForwardedLoopback(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	// gin.New trusts every proxy, so ClientIP follows the forged header here.
	router := gin.New()
	router.GET("/internal", InternalTokenAuth("s3cret", true), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(router, http.MethodGet, "/internal", func(r *http.Request) {
		r.RemoteAddr = "203.0.113.5:4444"
		r.Header.Set("X-Forwarded-For", "127.0.0.1")
		r.Header.Set("X-Real-IP", "127.0.0.1")
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forwarded loopback, got %d", w.Code)
	}
}

func TestRateLimiter_ForwardedForIgnoredWithoutTrustedProxies(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(1, time.Minute)
	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		t.Fatalf("SetTrustedProxies: %v", err)
	}
	router.POST("/sales/:id/view", limiter.Handler("view:{id}:{ip}"), func(c *gin.Context) { c.Status(http.StatusOK) })

	forged := func(ip string) func(*http.Request) {
		return func(r *http.Request) {
			r.RemoteAddr = "203.0.113.5:4444"
			r.Header.Set("X-Forwarded-For", ip)
		}
	}
	if w := serve(router, http.MethodPost, "/sales/a/view", forged("198.51.100.1")); w.Code != http.StatusOK {
		t.Fatalf("expected first view to pass, got %d", w.Code)
	}
	if w := serve(router, http.MethodPost, "/sales/a/view", forged("198.51.100.2")); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rotated X-Forwarded-For to share the peer window, got %d", w.Code)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	router := gin.New()
	router.POST("/sales/:id/view", limiter.Handler("view:{id}:{ip}"), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		if w := serve(router, http.MethodPost, "/sales/a/view", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	w := serve(router, http.MethodPost, "/sales/a/view", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected 429 with Retry-After, got %d %q", w.Code, w.Header().Get("Retry-After"))
	}
	if w := serve(router, http.MethodPost, "/sales/b/view", nil); w.Code != http.StatusOK {
		t.Fatalf("expected separate window per sale, got %d", w.Code)
	}

	now = now.Add(61 * time.Second)
	if w := serve(router, http.MethodPost, "/sales/a/view", nil); w.Code != http.StatusOK {
		t.Fatalf("expected window to slide, got %d", w.Code)
	}

	now = now.Add(2 * time.Minute)
	limiter.Prune()
	remaining := 0
	limiter.store.Range(func(_, _ any) bool {
		remaining++
		return true
	})
	if remaining != 0 {
		t.Fatalf("expected idle windows pruned, %d left", remaining)
	}
}

type captureAuditRepo struct {
	mu   sync.Mutex
	logs []*model.AuditLog
}

func (r *captureAuditRepo) Create(_ context.Context, log *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func (r *captureAuditRepo) List(context.Context, repository.AuditListFilter) ([]*model.AuditLog, int64, error) {
	return nil, 0, nil
}

func TestAuditRecorder_RecordsStatusAndMasksSecrets(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	repo := &captureAuditRepo{}
	recorder := NewAuditRecorder(repo, nil)

	router := gin.New()
	router.POST("/sales/:id/cancel", recorder.Handler("flash_sale.cancel", "flash_sale"), func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/sales/s-1/cancel", strings.NewReader(`{"reason":"late","api_key":"k"}`))
	router.ServeHTTP(httptest.NewRecorder(), req)
	recorder.Wait()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.logs) != 1 {
		t.Fatalf("expected one audit row, got %d", len(repo.logs))
	}
	entry := repo.logs[0]
	if entry.Status != http.StatusBadRequest || *entry.ResourceID != "s-1" || entry.ActorID != nil {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
	if entry.Payload["reason"] != "late" || entry.Payload["api_key"] != "***" {
		t.Fatalf("unexpected payload: %v", entry.Payload)
	}
}
