package v1

import (
	"crypto/rsa"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mallify-hub/internal/api/middleware"
	"mallify-hub/internal/api/response"
	"mallify-hub/internal/repository"
	"mallify-hub/internal/service"
	loggerpkg "mallify-hub/pkg/logger"
)

type AdminHandler struct {
	auditRepo repository.AuditRepository
	logTail   *loggerpkg.Tail
	logger    *zap.Logger
}

func NewAdminHandler(auditRepo repository.AuditRepository, logTail *loggerpkg.Tail, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{auditRepo: auditRepo, logTail: logTail, logger: logger}
}

func RegisterAdminRoutes(
	group *gin.RouterGroup,
	auditRepo repository.AuditRepository,
	logTail *loggerpkg.Tail,
	publicKey *rsa.PublicKey,
	logger *zap.Logger,
) {
	handler := NewAdminHandler(auditRepo, logTail, logger)
	admin := group.Group("/admin")
	admin.Use(middleware.JWTAuth(publicKey), middleware.RequireRole(service.RoleAdmin))
	admin.GET("/audit-logs", handler.ListAuditLogs)
	admin.GET("/logs", handler.ListLogs)
}

func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	if h.auditRepo == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal, "audit log unavailable")
		return
	}

	pagination := repository.PageOf(
		parseIntOrDefault(c.Query("page"), 1),
		parseIntOrDefault(c.Query("page_size"), 20),
	)
	filter := repository.AuditListFilter{Pagination: pagination}
	if raw := strings.TrimSpace(c.Query("action")); raw != "" {
		filter.Action = &raw
	}
	if raw := strings.TrimSpace(c.Query("actor_id")); raw != "" {
		filter.ActorID = &raw
	}
	if raw := strings.TrimSpace(c.Query("resource_type")); raw != "" {
		filter.ResourceType = &raw
	}
	if raw := strings.TrimSpace(c.Query("resource_id")); raw != "" {
		filter.ResourceID = &raw
	}

	since, err := parseQueryTime(firstNonEmpty(c.Query("since"), c.Query("from")))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid since")
		return
	}
	if !since.IsZero() {
		filter.StartTime = &since
	}
	until, err := parseQueryTime(firstNonEmpty(c.Query("until"), c.Query("to")))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid until")
		return
	}
	if !until.IsZero() {
		filter.EndTime = &until
	}

	items, total, err := h.auditRepo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("list audit logs failed", zap.Error(err))
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	pageSize := int(pagination.Limit)
	response.Paginated(c, items, int(pagination.Offset)/pageSize+1, pageSize, total)
}

func (h *AdminHandler) ListLogs(c *gin.Context) {
	minLevel := zapcore.InfoLevel
	if raw := strings.TrimSpace(c.Query("level")); raw != "" {
		level, err := zapcore.ParseLevel(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid level")
			return
		}
		minLevel = level
	}
	since, err := parseQueryTime(firstNonEmpty(c.Query("since"), c.Query("from")))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid since")
		return
	}

	items, total, page, pageSize := h.logTail.Query(loggerpkg.TailQuery{
		MinLevel: minLevel,
		Since:    since,
		Keyword:  c.Query("keyword"),
		Page:     parseIntOrDefault(c.Query("page"), 1),
		PageSize: parseIntOrDefault(c.Query("page_size"), 0),
	})
	response.Paginated(c, items, page, pageSize, total)
}

func parseQueryTime(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, nil
	}

	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		return ts.UTC(), nil
	}

	return time.Time{}, errors.New("invalid time")
}
