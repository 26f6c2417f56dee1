package v1

import (
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mallify-hub/internal/api/middleware"
	"mallify-hub/internal/api/response"
	"mallify-hub/internal/sse"
)

type SSEHandler struct {
	hub *sse.SSEHub
}

func NewSSEHandler(hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

func RegisterSSERoutes(group *gin.RouterGroup, hub *sse.SSEHub, publicKey *rsa.PublicKey) {
	handler := NewSSEHandler(hub)
	group.GET("/events", middleware.JWTAuth(publicKey), handler.Events)
}

// Events streams flash sale status and purchase events. Owners only see their own boutique.
func (h *SSEHandler) Events(c *gin.Context) {
	if h.hub == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal, "sse hub unavailable")
		return
	}

	claims, ok := middleware.GetClaims(c)
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "stream unsupported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	client := sse.NewClient(claims.UserID, claims.Role, claims.BoutiqueID)
	h.hub.Register(client)
	defer h.hub.Unregister(client.ID)

	lastID := firstNonEmpty(c.GetHeader("Last-Event-ID"), c.Query("last_event_id"))
	for _, event := range h.hub.Since(lastID, client) {
		if err := writeSSEEvent(c, event); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-client.Done:
			return
		case event := <-client.Ch:
			if err := writeSSEEvent(c, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(c *gin.Context, event sse.SSEEvent) error {
	if event.ID != "" {
		if _, err := fmt.Fprintf(c.Writer, "id: %s\n", event.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event.Type); err != nil {
		return err
	}

	for _, line := range strings.Split(event.Data, "\n") {
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n", line); err != nil {
			return err
		}
	}

	_, err := fmt.Fprint(c.Writer, "\n")
	return err
}
