package event

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	EventFlashSaleCreated   = "flash_sale.created"
	EventFlashSaleActivated = "flash_sale.activated"
	EventFlashSaleEnded     = "flash_sale.ended"
	EventFlashSaleCancelled = "flash_sale.cancelled"
	EventFlashSalePurchase  = "flash_sale.purchase"
	EventFlashSaleSoldOut   = "flash_sale.sold_out"
)

// SaleEvents lists every topic carrying a SaleChangedPayload.
var SaleEvents = []string{
	EventFlashSaleCreated,
	EventFlashSaleActivated,
	EventFlashSaleEnded,
	EventFlashSaleCancelled,
	EventFlashSaleSoldOut,
}

type SaleChangedPayload struct {
	SaleID          string    `json:"sale_id"`
	BoutiqueID      string    `json:"boutique_id"`
	Name            string    `json:"name"`
	Status          string    `json:"status"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	NotifyCustomers bool      `json:"notify_customers"`
	Reason          string    `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

type PurchasePayload struct {
	SaleID         string          `json:"sale_id"`
	BoutiqueID     string          `json:"boutique_id"`
	ProductID      string          `json:"product_id"`
	CustomerID     string          `json:"customer_id,omitempty"`
	Quantity       int             `json:"quantity"`
	Amount         decimal.Decimal `json:"amount"`
	StockRemaining int             `json:"stock_remaining"`
	Timestamp      time.Time       `json:"timestamp"`
}

type Bus struct {
	handlers sync.Map
	mu       sync.Mutex
	logger   *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

func (b *Bus) Subscribe(event string, handler func(payload any)) {
	if b == nil || handler == nil {
		return
	}

	eventName := strings.TrimSpace(event)
	if eventName == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := make([]func(payload any), 0, 1)
	if current, ok := b.handlers.Load(eventName); ok {
		if casted, valid := current.([]func(payload any)); valid {
			handlers = append(handlers, casted...)
		}
	}
	handlers = append(handlers, handler)
	b.handlers.Store(eventName, handlers)
}

// SubscribeMany registers the same handler under each event name.
func (b *Bus) SubscribeMany(events []string, handler func(event string, payload any)) {
	if handler == nil {
		return
	}
	for _, name := range events {
		name := name
		b.Subscribe(name, func(payload any) {
			handler(name, payload)
		})
	}
}

func (b *Bus) Publish(event string, payload any) {
	if b == nil {
		return
	}

	eventName := strings.TrimSpace(event)
	if eventName == "" {
		return
	}

	current, ok := b.handlers.Load(eventName)
	if !ok {
		return
	}

	handlers, ok := current.([]func(payload any))
	if !ok || len(handlers) == 0 {
		return
	}

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		go b.dispatch(eventName, handler, payload)
	}
}

func (b *Bus) dispatch(eventName string, handler func(payload any), payload any) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.logger.Error("event handler panicked",
				zap.String("event", eventName),
				zap.Any("panic", recovered),
			)
		}
	}()
	handler(payload)
}
