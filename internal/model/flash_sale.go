package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers so dashboards can do arithmetic on them.
	decimal.MarshalJSONWithoutQuotes = true
}

type FlashSaleStatus string

type FlashSaleType string

const (
	FlashSaleStatusScheduled FlashSaleStatus = "scheduled"
	FlashSaleStatusActive    FlashSaleStatus = "active"
	FlashSaleStatusEnded     FlashSaleStatus = "ended"
	FlashSaleStatusCancelled FlashSaleStatus = "cancelled"
)

const (
	FlashSaleTypeFlashSale     FlashSaleType = "flash_sale"
	FlashSaleTypeProductLaunch FlashSaleType = "product_launch"
	FlashSaleTypeClearance     FlashSaleType = "clearance"
	FlashSaleTypeDailyDeal     FlashSaleType = "daily_deal"
)

const (
	MetadataCancellationReason = "cancellation_reason"
	MetadataCancelledAt        = "cancelled_at"
)

func (s FlashSaleStatus) Valid() bool {
	switch s {
	case FlashSaleStatusScheduled, FlashSaleStatusActive, FlashSaleStatusEnded, FlashSaleStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition can leave this status.
func (s FlashSaleStatus) Terminal() bool {
	return s == FlashSaleStatusEnded || s == FlashSaleStatusCancelled
}

func (t FlashSaleType) Valid() bool {
	switch t {
	case FlashSaleTypeFlashSale, FlashSaleTypeProductLaunch, FlashSaleTypeClearance, FlashSaleTypeDailyDeal:
		return true
	default:
		return false
	}
}

type FlashSaleProduct struct {
	ProductID       string          `db:"product_id" json:"product_id"`
	OriginalPrice   decimal.Decimal `db:"original_price" json:"original_price"`
	SalePrice       decimal.Decimal `db:"sale_price" json:"sale_price"`
	DiscountPercent decimal.Decimal `db:"discount_percent" json:"discount_percent"`
	StockRemaining  int             `db:"stock_remaining" json:"stock_remaining"`
	UnitsSold       int             `db:"units_sold" json:"units_sold"`
}

type EligibilityRules struct {
	MinPurchaseAmount      decimal.Decimal `json:"min_purchase_amount"`
	MaxQuantityPerCustomer int             `json:"max_quantity_per_customer"`
	EligibleTiers          []string        `json:"eligible_tiers,omitempty"`
	FirstTimeBuyersOnly    bool            `json:"first_time_buyers_only"`
}

type Visibility struct {
	IsPublic           bool `db:"is_public" json:"is_public"`
	NotifyCustomers    bool `db:"notify_customers" json:"notify_customers"`
	FeaturedOnHomepage bool `db:"featured_on_homepage" json:"featured_on_homepage"`
}

type FlashSaleCounters struct {
	Views          int64           `db:"views" json:"views"`
	Participants   int64           `db:"participants" json:"participants"`
	Revenue        decimal.Decimal `db:"revenue" json:"revenue"`
	ConversionRate decimal.Decimal `db:"conversion_rate" json:"conversion_rate"`
}

type FlashSale struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	BoutiqueID  uuid.UUID              `db:"boutique_id" json:"boutique_id"`
	Name        string                 `db:"name" json:"name"`
	Description string                 `db:"description" json:"description"`
	Type        FlashSaleType          `db:"type" json:"type"`
	Status      FlashSaleStatus        `db:"status" json:"status"`
	StartAt     time.Time              `db:"start_at" json:"start_at"`
	EndAt       time.Time              `db:"end_at" json:"end_at"`
	Products    []FlashSaleProduct     `db:"-" json:"products"`
	Rules       EligibilityRules       `db:"rules" json:"rules"`
	Visibility  Visibility             `db:"-" json:"visibility"`
	Counters    FlashSaleCounters      `db:"-" json:"performance"`
	Metadata    map[string]interface{} `db:"metadata" json:"metadata,omitempty"`
	CreatedBy   *uuid.UUID             `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `db:"updated_at" json:"updated_at"`
}

func (s *FlashSale) FindProduct(productID string) (int, *FlashSaleProduct) {
	if s == nil {
		return -1, nil
	}
	for i := range s.Products {
		if s.Products[i].ProductID == productID {
			return i, &s.Products[i]
		}
	}
	return -1, nil
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (s *FlashSale) Clone() *FlashSale {
	if s == nil {
		return nil
	}

	out := *s
	if s.Products != nil {
		out.Products = make([]FlashSaleProduct, len(s.Products))
		copy(out.Products, s.Products)
	}
	if s.Rules.EligibleTiers != nil {
		out.Rules.EligibleTiers = append([]string(nil), s.Rules.EligibleTiers...)
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	if s.CreatedBy != nil {
		createdBy := *s.CreatedBy
		out.CreatedBy = &createdBy
	}
	return &out
}

type FlashSalePurchase struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	SaleID     uuid.UUID       `db:"sale_id" json:"sale_id"`
	ProductID  string          `db:"product_id" json:"product_id"`
	CustomerID string          `db:"customer_id" json:"customer_id"`
	Quantity   int             `db:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal `db:"unit_price" json:"unit_price"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
