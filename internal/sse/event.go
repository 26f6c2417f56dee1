package sse

import (
	"encoding/json"
	"strconv"
	"sync/atomic"
)

type SSEEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data string `json:"data"`
	// BoutiqueID scopes delivery; empty means every connected client.
	BoutiqueID string `json:"-"`
}

const (
	EventHeartbeat         = "heartbeat"
	EventResync            = "resync"
	EventFlashSaleStatus   = "flash_sale.status"
	EventFlashSalePurchase = "flash_sale.purchase"
	EventFlashSaleSoldOut  = "flash_sale.sold_out"
)

var globalEventID int64

func NewEvent(eventType string, payload any) SSEEvent {
	id := atomic.AddInt64(&globalEventID, 1)
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("null")
	}

	return SSEEvent{
		ID:   strconv.FormatInt(id, 10),
		Type: eventType,
		Data: string(data),
	}
}

func NewBoutiqueEvent(eventType, boutiqueID string, payload any) SSEEvent {
	event := NewEvent(eventType, payload)
	event.BoutiqueID = boutiqueID
	return event
}
