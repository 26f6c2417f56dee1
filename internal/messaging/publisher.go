package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"mallify-hub/internal/event"
	"mallify-hub/internal/metrics"
)

const DefaultExchange = "mallify.flashsale"

var ErrNotConnected = errors.New("amqp channel is not connected")

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	exchange string
	logger   *zap.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel channel
	closed  bool
}

// Dial connects to the broker and declares the durable topic exchange.
func Dial(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := &Publisher{exchange: exchange, logger: logger, conn: conn, channel: ch}
	go p.watchClose(conn)
	return p, nil
}

func newPublisherWithChannel(ch channel, exchange string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Publisher{exchange: exchange, logger: logger, channel: ch}
}

func (p *Publisher) watchClose(conn *amqp.Connection) {
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
	err, ok := <-notifyClose
	if !ok || err == nil {
		return
	}

	p.mu.Lock()
	p.channel = nil
	closed := p.closed
	p.mu.Unlock()

	if !closed {
		p.logger.Error("amqp connection lost", zap.String("reason", err.Reason), zap.Int("code", err.Code))
	}
}

// RoutingKey maps a domain event name onto the exchange routing key.
func RoutingKey(eventName string) string {
	return "flashsale." + strings.TrimPrefix(eventName, "flash_sale.")
}

func (p *Publisher) Publish(eventName string, payload any) error {
	if p == nil {
		return ErrNotConnected
	}

	p.mu.RLock()
	ch := p.channel
	p.mu.RUnlock()
	if ch == nil {
		return ErrNotConnected
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventName, err)
	}

	routingKey := RoutingKey(eventName)
	err = ch.Publish(
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				"event_type": eventName,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.logger.Debug("amqp event published", zap.String("routing_key", routingKey))
	return nil
}

// NotifyCustomers forwards activation and cancellation of opted-in sales to the notification service.
func (p *Publisher) NotifyCustomers(eventName string, payload any) {
	if eventName != event.EventFlashSaleActivated && eventName != event.EventFlashSaleCancelled {
		return
	}

	sale, ok := payload.(event.SaleChangedPayload)
	if !ok || !sale.NotifyCustomers {
		return
	}

	err := p.Publish(eventName, sale)
	metrics.IncNotification(err == nil)
	if err != nil {
		p.logger.Warn("publish customer notification failed",
			zap.String("event", eventName),
			zap.String("sale_id", sale.SaleID),
			zap.Error(err),
		)
	}
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var closeErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			closeErr = fmt.Errorf("close amqp channel: %w", err)
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("close amqp connection: %w", err)
		}
	}
	return closeErr
}
