package sse

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const RoleAdmin = "admin"

type SSEClient struct {
	ID         string
	UserID     string
	Role       string
	BoutiqueID string
	Ch         chan SSEEvent
	Done       chan struct{}

	fullStreak atomic.Int32
	closeOnce  sync.Once
}

func NewClient(userID, role, boutiqueID string) *SSEClient {
	return &SSEClient{
		ID:         uuid.NewString(),
		UserID:     userID,
		Role:       role,
		BoutiqueID: boutiqueID,
		Ch:         make(chan SSEEvent, 512),
		Done:       make(chan struct{}),
	}
}

// Accepts reports whether the event is visible to this client.
func (c *SSEClient) Accepts(event SSEEvent) bool {
	if c == nil {
		return false
	}
	if event.BoutiqueID == "" || strings.EqualFold(c.Role, RoleAdmin) {
		return true
	}
	return c.BoutiqueID != "" && c.BoutiqueID == event.BoutiqueID
}

func (c *SSEClient) Close() {
	if c == nil {
		return
	}

	c.closeOnce.Do(func() {
		close(c.Done)
	})
}

func (c *SSEClient) MarkDispatchSuccess() {
	if c == nil {
		return
	}
	c.fullStreak.Store(0)
}

func (c *SSEClient) MarkDispatchFull() int32 {
	if c == nil {
		return 0
	}
	return c.fullStreak.Add(1)
}
