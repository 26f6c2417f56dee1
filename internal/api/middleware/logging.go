package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	loggerpkg "mallify-hub/pkg/logger"
)

const (
	requestBodyLogLimit = 64 << 10
	RequestIDHeader     = "X-Request-ID"
	requestIDContextKey = "request_id"
)

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		startedAt := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(RequestIDHeader, requestID)

		requestBody := snapshotRequestBody(c)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("raw_path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Int("status", c.Writer.Status()),
			zap.Int("size", c.Writer.Size()),
			zap.Duration("latency", time.Since(startedAt)),
		}

		if claims, ok := GetClaims(c); ok {
			fields = append(fields, zap.String("user_id", claims.UserID), zap.String("role", claims.Role))
		}
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			fields = append(fields, zap.String("authorization", authHeader))
		}

		if len(requestBody) > 0 {
			var payload interface{}
			if err := json.Unmarshal(requestBody, &payload); err == nil {
				fields = append(fields, zap.Any("request_body", payload))
			}
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, zap.String("errors", errs.String()))
		}

		sanitized := loggerpkg.SanitizeFields(fields)
		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("http request completed", sanitized...)
		case status >= 400:
			logger.Warn("http request completed", sanitized...)
		default:
			logger.Info("http request completed", sanitized...)
		}
	}
}

func RequestID(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}

func snapshotRequestBody(c *gin.Context) []byte {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return nil
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		c.Request.Body = io.NopCloser(bytes.NewReader(nil))
		return nil
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if len(raw) <= requestBodyLogLimit {
		return raw
	}
	return nil
}
