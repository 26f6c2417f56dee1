package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	PurchaseResultOK                = "ok"
	PurchaseResultNotActive         = "not_active"
	PurchaseResultInsufficientStock = "insufficient_stock"
	PurchaseResultQuotaExceeded     = "quota_exceeded"
	PurchaseResultNotFound          = "not_found"
	PurchaseResultError             = "error"
)

var (
	FlashSalesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mallify_flash_sales",
		Help: "Number of flash sales by status",
	}, []string{"status"})

	PurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mallify_flash_sale_purchases_total",
		Help: "Purchase attempts by result",
	}, []string{"result"})

	UnitsSoldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mallify_flash_sale_units_sold_total",
		Help: "Total units sold through flash sales",
	})

	RevenueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mallify_flash_sale_revenue_total",
		Help: "Total flash sale revenue",
	})

	PurchaseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mallify_flash_sale_purchase_duration_seconds",
		Help:    "Time to apply a purchase",
		Buckets: prometheus.DefBuckets,
	})

	SweepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mallify_flash_sale_sweep_transitions_total",
		Help: "Status transitions applied by the sweep",
	}, []string{"to"})

	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mallify_flash_sale_sweep_errors_total",
		Help: "Total sweep failures",
	})

	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mallify_notifications_published_total",
		Help: "Customer notifications published by result",
	}, []string{"result"})

	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mallify_sse_clients",
		Help: "Current number of SSE clients connected",
	})
)

func SetFlashSaleCount(status string, count int64) {
	label := strings.TrimSpace(status)
	if label == "" {
		label = "unknown"
	}
	if count < 0 {
		count = 0
	}
	FlashSalesByStatus.WithLabelValues(label).Set(float64(count))
}

func IncPurchase(result string) {
	label := strings.TrimSpace(result)
	if label == "" {
		label = PurchaseResultError
	}
	PurchasesTotal.WithLabelValues(label).Inc()
}

func AddSale(units int, revenue float64) {
	if units > 0 {
		UnitsSoldTotal.Add(float64(units))
	}
	if revenue > 0 {
		RevenueTotal.Add(revenue)
	}
}

func ObservePurchaseDuration(duration time.Duration) {
	PurchaseDuration.Observe(duration.Seconds())
}

func AddSweepTransitions(activated, ended int) {
	if activated > 0 {
		SweepTransitions.WithLabelValues("active").Add(float64(activated))
	}
	if ended > 0 {
		SweepTransitions.WithLabelValues("ended").Add(float64(ended))
	}
}

func IncSweepError() {
	SweepErrors.Inc()
}

func IncNotification(ok bool) {
	if ok {
		NotificationsPublished.WithLabelValues("ok").Inc()
		return
	}
	NotificationsPublished.WithLabelValues("error").Inc()
}

func SetSSEClients(count int) {
	if count < 0 {
		count = 0
	}
	SSEClients.Set(float64(count))
}
