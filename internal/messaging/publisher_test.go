package messaging

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/streadway/amqp"

	"mallify-hub/internal/event"
)

type recordedPublish struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu        sync.Mutex
	published []recordedPublish
	err       error
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, recordedPublish{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestRoutingKey(t *testing.T) {
	t.Parallel()

	if got := RoutingKey(event.EventFlashSaleActivated); got != "flashsale.activated" {
		t.Fatalf("unexpected routing key %q", got)
	}
}

func TestNotifyCustomers_PublishesOptedInActivation(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	p := newPublisherWithChannel(ch, "", nil)

	p.NotifyCustomers(event.EventFlashSaleActivated, event.SaleChangedPayload{
		SaleID:          "sale-1",
		NotifyCustomers: true,
	})

	if len(ch.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(ch.published))
	}
	got := ch.published[0]
	if got.exchange != DefaultExchange || got.key != "flashsale.activated" {
		t.Fatalf("unexpected target %s/%s", got.exchange, got.key)
	}
	if got.msg.DeliveryMode != amqp.Persistent || got.msg.ContentType != "application/json" {
		t.Fatalf("unexpected publishing flags: %+v", got.msg)
	}

	var body event.SaleChangedPayload
	if err := json.Unmarshal(got.msg.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.SaleID != "sale-1" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestNotifyCustomers_SkipsOptOutAndOtherEvents(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	p := newPublisherWithChannel(ch, "", nil)

	p.NotifyCustomers(event.EventFlashSaleActivated, event.SaleChangedPayload{SaleID: "s", NotifyCustomers: false})
	p.NotifyCustomers(event.EventFlashSaleEnded, event.SaleChangedPayload{SaleID: "s", NotifyCustomers: true})
	p.NotifyCustomers(event.EventFlashSaleCancelled, "not a payload")

	if len(ch.published) != 0 {
		t.Fatalf("expected nothing published, got %d", len(ch.published))
	}
}

func TestPublish_AfterCloseFails(t *testing.T) {
	t.Parallel()

	p := newPublisherWithChannel(&fakeChannel{}, "", nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Publish(event.EventFlashSaleCancelled, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
