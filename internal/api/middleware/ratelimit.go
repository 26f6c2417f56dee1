package middleware

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"mallify-hub/internal/api/response"
)

type slidingWindowCounter struct {
	mu         sync.Mutex
	timestamps []int64
}

// RateLimiter keeps one sliding window per resolved key.
type RateLimiter struct {
	store  sync.Map
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{limit: limit, window: window, now: time.Now}
}

// Handler resolves keys from a template: "ip", "user_id", or a pattern
// containing {ip}, {user_id} and {id} placeholders.
func (l *RateLimiter) Handler(keyTemplate string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := resolveRateLimitKey(c, keyTemplate)
		if key == "" {
			key = "global"
		}

		if !l.allow(key) {
			c.Header("Retry-After", formatSeconds(l.window))
			response.Fail(c, 429, response.ErrTooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) allow(key string) bool {
	entryAny, _ := l.store.LoadOrStore(key, &slidingWindowCounter{
		timestamps: make([]int64, 0, l.limit),
	})
	entry := entryAny.(*slidingWindowCounter)

	now := l.now().UnixNano()
	cutoff := now - l.window.Nanoseconds()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts > cutoff {
			next = append(next, ts)
		}
	}
	entry.timestamps = next

	if len(entry.timestamps) >= l.limit {
		return false
	}
	entry.timestamps = append(entry.timestamps, now)
	return true
}

// Prune drops windows with no recent hits.
func (l *RateLimiter) Prune() {
	cutoff := l.now().UnixNano() - l.window.Nanoseconds()
	l.store.Range(func(key, value any) bool {
		entry := value.(*slidingWindowCounter)
		entry.mu.Lock()
		idle := len(entry.timestamps) == 0 || entry.timestamps[len(entry.timestamps)-1] <= cutoff
		entry.mu.Unlock()
		if idle {
			l.store.Delete(key)
		}
		return true
	})
}

func resolveRateLimitKey(c *gin.Context, keyTemplate string) string {
	userID := ""
	if claims, ok := GetClaims(c); ok {
		userID = claims.UserID
	}

	switch keyTemplate {
	case "", "ip":
		return "ip:" + c.ClientIP()
	case "user_id":
		if userID == "" {
			return "user_id:anonymous:" + c.ClientIP()
		}
		return "user_id:" + userID
	default:
		replaced := strings.ReplaceAll(keyTemplate, "{ip}", c.ClientIP())
		replaced = strings.ReplaceAll(replaced, "{user_id}", userID)
		replaced = strings.ReplaceAll(replaced, "{id}", c.Param("id"))
		return replaced
	}
}

func formatSeconds(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
