package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mallify-hub/internal/model"
	"mallify-hub/internal/repository"
	loggerpkg "mallify-hub/pkg/logger"
)

const auditWriteTimeout = 2 * time.Second

// AuditRecorder writes one audit row per mutating request in the background.
type AuditRecorder struct {
	repo   repository.AuditRepository
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewAuditRecorder(repo repository.AuditRepository, logger *zap.Logger) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRecorder{repo: repo, logger: logger}
}

func (r *AuditRecorder) Handler(action, resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil || r.repo == nil {
			c.Next()
			return
		}

		var body []byte
		if c.Request != nil && c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		}

		c.Next()

		entry := &model.AuditLog{
			Action:       action,
			ResourceType: strPtr(resourceType),
			ResourceID:   strPtr(c.Param("id")),
			Payload:      extractAuditPayload(body),
			Status:       c.Writer.Status(),
			IPAddress:    strPtr(c.ClientIP()),
			UserAgent:    strPtr(c.Request.UserAgent()),
			CreatedAt:    time.Now().UTC(),
		}
		if claims, ok := GetClaims(c); ok {
			entry.ActorID = strPtr(claims.UserID)
			entry.ActorRole = strPtr(claims.Role)
		}

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
			defer cancel()

			if err := r.repo.Create(ctx, entry); err != nil {
				r.logger.Warn("write audit log failed",
					zap.String("action", action),
					zap.Int("status", entry.Status),
					zap.Error(err),
				)
			}
		}()
	}
}

// Wait blocks until pending audit writes finish.
func (r *AuditRecorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func extractAuditPayload(body []byte) map[string]interface{} {
	if len(body) == 0 {
		return nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	return loggerpkg.SanitizeMap(payload)
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
