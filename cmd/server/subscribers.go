package main

import (
	"go.uber.org/zap"

	"mallify-hub/internal/cache"
	"mallify-hub/internal/event"
	"mallify-hub/internal/messaging"
	"mallify-hub/internal/sse"
)

type dashboardMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func dashboardEvents() []string {
	return append(append([]string{}, event.SaleEvents...), event.EventFlashSalePurchase, event.EventFlashSaleSoldOut)
}

// registerDashboardSubscriber fans domain events out to SSE clients, scoped to the sale's boutique.
func registerDashboardSubscriber(bus *event.Bus, hub *sse.SSEHub) {
	if bus == nil || hub == nil {
		return
	}

	bus.SubscribeMany(dashboardEvents(), func(name string, payload any) {
		if sseEvent, ok := toSSEEvent(name, payload); ok {
			hub.Publish(sseEvent)
		}
	})
}

func toSSEEvent(name string, payload any) (sse.SSEEvent, bool) {
	switch data := payload.(type) {
	case event.SaleChangedPayload:
		eventType := sse.EventFlashSaleStatus
		if name == event.EventFlashSaleSoldOut {
			eventType = sse.EventFlashSaleSoldOut
		}
		return sse.NewBoutiqueEvent(eventType, data.BoutiqueID, dashboardMessage{Event: name, Payload: data}), true
	case event.PurchasePayload:
		return sse.NewBoutiqueEvent(sse.EventFlashSalePurchase, data.BoutiqueID, dashboardMessage{Event: name, Payload: data}), true
	default:
		return sse.SSEEvent{}, false
	}
}

func registerNotificationSubscriber(bus *event.Bus, publisher *messaging.Publisher) {
	if bus == nil || publisher == nil {
		return
	}
	bus.SubscribeMany([]string{event.EventFlashSaleActivated, event.EventFlashSaleCancelled}, publisher.NotifyCustomers)
}

// registerCacheSubscriber drops the cached active listing when a product line sells out.
func registerCacheSubscriber(bus *event.Bus, activeCache *cache.ActiveSaleCache, logger *zap.Logger) {
	if bus == nil || activeCache == nil {
		return
	}
	bus.Subscribe(event.EventFlashSaleSoldOut, activeCache.InvalidateAsync)
	logger.Debug("active sale cache subscribed to sold-out events")
}
