package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mallify-hub/internal/model"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrProductNotFound   = errors.New("product line not found")
	ErrDuplicateProduct  = errors.New("product line already exists")
	ErrStatusConflict    = errors.New("flash sale status does not allow this operation")
	ErrSaleNotActive     = errors.New("flash sale is not active")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrQuotaExceeded     = errors.New("customer quota exceeded")
)

const (
	MaxPage     = 10000
	MaxPageSize = 200
)

type Pagination struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

// PageOf converts a 1-based page into a limit/offset pair, clamping both to MaxPage and MaxPageSize.
func PageOf(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{
		Limit:  int32(pageSize),
		Offset: int32((page - 1) * pageSize),
	}
}

type FlashSaleListFilter struct {
	BoutiqueID *uuid.UUID             `json:"boutique_id,omitempty"`
	Status     *model.FlashSaleStatus `json:"status,omitempty"`
	Type       *model.FlashSaleType   `json:"type,omitempty"`
	PublicOnly bool                   `json:"public_only,omitempty"`
	Pagination Pagination             `json:"pagination"`
}

type AuditListFilter struct {
	Action       *string    `json:"action,omitempty"`
	ActorID      *string    `json:"actor_id,omitempty"`
	ResourceType *string    `json:"resource_type,omitempty"`
	ResourceID   *string    `json:"resource_id,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Pagination   Pagination `json:"pagination"`
}

// PurchaseParams describes one stock decrement against a single product line.
type PurchaseParams struct {
	SaleID     uuid.UUID
	ProductID  string
	CustomerID string
	Quantity   int
	At         time.Time
}

type PurchaseOutcome struct {
	Purchase       model.FlashSalePurchase
	StockRemaining int
	UnitsSold      int
	Participants   int64
	Revenue        decimal.Decimal
	SoldOut        bool
	BoutiqueID     uuid.UUID
}

type StatusCount struct {
	Status model.FlashSaleStatus `json:"status"`
	Total  int64                 `json:"total"`
}

type BoutiqueSummary struct {
	ByStatus     []StatusCount   `json:"by_status"`
	Revenue      decimal.Decimal `json:"revenue"`
	Participants int64           `json:"participants"`
	UnitsSold    int64           `json:"units_sold"`
}

type FlashSaleRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.FlashSale, error)
	Create(ctx context.Context, sale *model.FlashSale) error
	// Update writes the editable fields only when the stored status still equals expected.
	Update(ctx context.Context, sale *model.FlashSale, expected model.FlashSaleStatus) error
	Cancel(ctx context.Context, id uuid.UUID, metadata map[string]interface{}, at time.Time) (*model.FlashSale, error)
	AddProduct(ctx context.Context, id uuid.UUID, product model.FlashSaleProduct, at time.Time) error
	RemoveProduct(ctx context.Context, id uuid.UUID, productID string, at time.Time) error
	ApplyPurchase(ctx context.Context, params PurchaseParams) (*PurchaseOutcome, error)
	IncrementViews(ctx context.Context, id uuid.UUID) (int64, error)
	List(ctx context.Context, filter FlashSaleListFilter) ([]*model.FlashSale, error)
	Count(ctx context.Context, filter FlashSaleListFilter) (int64, error)
	ListActive(ctx context.Context, now time.Time) ([]*model.FlashSale, error)
	ListPurchases(ctx context.Context, saleID uuid.UUID, page Pagination) ([]*model.FlashSalePurchase, int64, error)
	ActivateDue(ctx context.Context, now time.Time) ([]*model.FlashSale, error)
	EndDue(ctx context.Context, now time.Time) ([]*model.FlashSale, error)
	Summary(ctx context.Context, boutiqueID *uuid.UUID) (*BoutiqueSummary, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

type AuditRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
	List(ctx context.Context, filter AuditListFilter) ([]*model.AuditLog, int64, error)
}
