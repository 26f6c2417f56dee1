// Package memory holds a mutex-guarded FlashSaleRepository with the same
// status guards and atomic purchase semantics as the postgres one.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mallify-hub/internal/model"
	"mallify-hub/internal/repository"
)

type FlashSaleRepository struct {
	mu        sync.Mutex
	sales     map[uuid.UUID]*model.FlashSale
	purchases map[uuid.UUID][]*model.FlashSalePurchase
}

func NewFlashSaleRepository() *FlashSaleRepository {
	return &FlashSaleRepository{
		sales:     make(map[uuid.UUID]*model.FlashSale),
		purchases: make(map[uuid.UUID][]*model.FlashSalePurchase),
	}
}

var _ repository.FlashSaleRepository = (*FlashSaleRepository)(nil)

func (r *FlashSaleRepository) FindByID(_ context.Context, id uuid.UUID) (*model.FlashSale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sale, ok := r.sales[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return sale.Clone(), nil
}

func (r *FlashSaleRepository) Create(_ context.Context, sale *model.FlashSale) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sale.ID == uuid.Nil {
		sale.ID = uuid.New()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
		sale.UpdatedAt = sale.CreatedAt
	}
	if sale.Products == nil {
		sale.Products = make([]model.FlashSaleProduct, 0)
	}
	r.sales[sale.ID] = sale.Clone()
	return nil
}

func (r *FlashSaleRepository) Update(_ context.Context, sale *model.FlashSale, expected model.FlashSaleStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sales[sale.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrStatusConflict
	}

	next := sale.Clone()
	next.Status = stored.Status
	next.Products = stored.Products
	next.Counters = stored.Counters
	next.CreatedAt = stored.CreatedAt
	next.CreatedBy = stored.CreatedBy
	r.sales[sale.ID] = next
	return nil
}

func (r *FlashSaleRepository) Cancel(
	_ context.Context,
	id uuid.UUID,
	metadata map[string]interface{},
	at time.Time,
) (*model.FlashSale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sales[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if stored.Status.Terminal() {
		return nil, repository.ErrStatusConflict
	}

	stored.Status = model.FlashSaleStatusCancelled
	if stored.Metadata == nil {
		stored.Metadata = make(map[string]interface{}, len(metadata))
	}
	for key, value := range metadata {
		stored.Metadata[key] = value
	}
	stored.UpdatedAt = at
	return stored.Clone(), nil
}

func (r *FlashSaleRepository) AddProduct(_ context.Context, id uuid.UUID, product model.FlashSaleProduct, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.mutable(id)
	if err != nil {
		return err
	}
	if idx, _ := stored.FindProduct(product.ProductID); idx >= 0 {
		return repository.ErrDuplicateProduct
	}

	stored.Products = append(stored.Products, product)
	stored.UpdatedAt = at
	return nil
}

func (r *FlashSaleRepository) RemoveProduct(_ context.Context, id uuid.UUID, productID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.mutable(id)
	if err != nil {
		return err
	}
	idx, _ := stored.FindProduct(productID)
	if idx < 0 {
		return repository.ErrProductNotFound
	}

	stored.Products = append(stored.Products[:idx], stored.Products[idx+1:]...)
	stored.UpdatedAt = at
	return nil
}

func (r *FlashSaleRepository) ApplyPurchase(_ context.Context, params repository.PurchaseParams) (*repository.PurchaseOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sales[params.SaleID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if stored.Status != model.FlashSaleStatusActive || !params.At.Before(stored.EndAt) {
		return nil, repository.ErrSaleNotActive
	}

	if limit := stored.Rules.MaxQuantityPerCustomer; limit > 0 {
		already := 0
		if params.CustomerID != "" {
			for _, purchase := range r.purchases[params.SaleID] {
				if purchase.CustomerID == params.CustomerID {
					already += purchase.Quantity
				}
			}
		}
		if already+params.Quantity > limit {
			return nil, repository.ErrQuotaExceeded
		}
	}

	_, line := stored.FindProduct(params.ProductID)
	if line == nil {
		return nil, repository.ErrProductNotFound
	}
	if line.StockRemaining < params.Quantity {
		return nil, repository.ErrInsufficientStock
	}

	line.StockRemaining -= params.Quantity
	line.UnitsSold += params.Quantity
	amount := line.SalePrice.Mul(decimal.NewFromInt(int64(params.Quantity)))

	stored.Counters.Participants++
	stored.Counters.Revenue = stored.Counters.Revenue.Add(amount)
	stored.Counters.ConversionRate = conversionRate(stored.Counters.Participants, stored.Counters.Views)
	stored.UpdatedAt = params.At

	purchase := &model.FlashSalePurchase{
		ID:         uuid.New(),
		SaleID:     params.SaleID,
		ProductID:  params.ProductID,
		CustomerID: params.CustomerID,
		Quantity:   params.Quantity,
		UnitPrice:  line.SalePrice,
		Amount:     amount,
		CreatedAt:  params.At,
	}
	r.purchases[params.SaleID] = append(r.purchases[params.SaleID], purchase)

	soldOut := true
	for _, product := range stored.Products {
		if product.StockRemaining > 0 {
			soldOut = false
			break
		}
	}

	return &repository.PurchaseOutcome{
		Purchase:       *purchase,
		StockRemaining: line.StockRemaining,
		UnitsSold:      line.UnitsSold,
		Participants:   stored.Counters.Participants,
		Revenue:        stored.Counters.Revenue,
		SoldOut:        soldOut,
		BoutiqueID:     stored.BoutiqueID,
	}, nil
}

func (r *FlashSaleRepository) IncrementViews(_ context.Context, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sales[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	stored.Counters.Views++
	stored.Counters.ConversionRate = conversionRate(stored.Counters.Participants, stored.Counters.Views)
	return stored.Counters.Views, nil
}

func (r *FlashSaleRepository) List(_ context.Context, filter repository.FlashSaleListFilter) ([]*model.FlashSale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := r.filter(filter)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit, offset := int(filter.Pagination.Limit), int(filter.Pagination.Offset)
	if limit <= 0 {
		limit = 20
	}
	if offset >= len(matched) {
		return []*model.FlashSale{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*model.FlashSale, 0, end-offset)
	for _, sale := range matched[offset:end] {
		out = append(out, sale.Clone())
	}
	return out, nil
}

func (r *FlashSaleRepository) Count(_ context.Context, filter repository.FlashSaleListFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(len(r.filter(filter))), nil
}

func (r *FlashSaleRepository) ListActive(_ context.Context, now time.Time) ([]*model.FlashSale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.FlashSale, 0)
	for _, sale := range r.sales {
		if sale.Status == model.FlashSaleStatusActive && !sale.StartAt.After(now) && !sale.EndAt.Before(now) {
			out = append(out, sale.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndAt.Before(out[j].EndAt)
	})
	return out, nil
}

func (r *FlashSaleRepository) ListPurchases(
	_ context.Context,
	saleID uuid.UUID,
	page repository.Pagination,
) ([]*model.FlashSalePurchase, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.purchases[saleID]
	total := int64(len(all))

	ordered := make([]*model.FlashSalePurchase, len(all))
	for i := range all {
		ordered[len(all)-1-i] = all[i]
	}

	limit, offset := int(page.Limit), int(page.Offset)
	if limit <= 0 {
		limit = 20
	}
	if offset >= len(ordered) {
		return []*model.FlashSalePurchase{}, total, nil
	}
	end := offset + limit
	if end > len(ordered) {
		end = len(ordered)
	}

	out := make([]*model.FlashSalePurchase, 0, end-offset)
	for _, item := range ordered[offset:end] {
		copied := *item
		out = append(out, &copied)
	}
	return out, total, nil
}

func (r *FlashSaleRepository) ActivateDue(_ context.Context, now time.Time) ([]*model.FlashSale, error) {
	return r.transition(model.FlashSaleStatusScheduled, model.FlashSaleStatusActive, now, func(sale *model.FlashSale) bool {
		return !sale.StartAt.After(now)
	}), nil
}

func (r *FlashSaleRepository) EndDue(_ context.Context, now time.Time) ([]*model.FlashSale, error) {
	return r.transition(model.FlashSaleStatusActive, model.FlashSaleStatusEnded, now, func(sale *model.FlashSale) bool {
		return !sale.EndAt.After(now)
	}), nil
}

func (r *FlashSaleRepository) Summary(_ context.Context, boutiqueID *uuid.UUID) (*repository.BoutiqueSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[model.FlashSaleStatus]int64)
	summary := &repository.BoutiqueSummary{Revenue: decimal.Zero}
	for _, sale := range r.sales {
		if boutiqueID != nil && sale.BoutiqueID != *boutiqueID {
			continue
		}
		counts[sale.Status]++
		summary.Revenue = summary.Revenue.Add(sale.Counters.Revenue)
		summary.Participants += sale.Counters.Participants
		for _, product := range sale.Products {
			summary.UnitsSold += int64(product.UnitsSold)
		}
	}

	summary.ByStatus = statusCounts(counts)
	return summary, nil
}

func (r *FlashSaleRepository) CountByStatus(_ context.Context) ([]repository.StatusCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[model.FlashSaleStatus]int64)
	for _, sale := range r.sales {
		counts[sale.Status]++
	}
	return statusCounts(counts), nil
}

func (r *FlashSaleRepository) mutable(id uuid.UUID) (*model.FlashSale, error) {
	stored, ok := r.sales[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if stored.Status.Terminal() {
		return nil, repository.ErrStatusConflict
	}
	return stored, nil
}

func (r *FlashSaleRepository) filter(filter repository.FlashSaleListFilter) []*model.FlashSale {
	out := make([]*model.FlashSale, 0, len(r.sales))
	for _, sale := range r.sales {
		if filter.BoutiqueID != nil && sale.BoutiqueID != *filter.BoutiqueID {
			continue
		}
		if filter.Status != nil && sale.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && sale.Type != *filter.Type {
			continue
		}
		if filter.PublicOnly && !sale.Visibility.IsPublic {
			continue
		}
		out = append(out, sale)
	}
	return out
}

func (r *FlashSaleRepository) transition(
	from, to model.FlashSaleStatus,
	now time.Time,
	due func(*model.FlashSale) bool,
) []*model.FlashSale {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.FlashSale, 0)
	for _, sale := range r.sales {
		if sale.Status != from || !due(sale) {
			continue
		}
		sale.Status = to
		sale.UpdatedAt = now
		out = append(out, sale.Clone())
	}
	return out
}

func statusCounts(counts map[model.FlashSaleStatus]int64) []repository.StatusCount {
	out := make([]repository.StatusCount, 0, len(counts))
	for status, total := range counts {
		out = append(out, repository.StatusCount{Status: status, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Status < out[j].Status
	})
	return out
}

func conversionRate(participants, views int64) decimal.Decimal {
	if views <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(participants).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(views)).Round(2)
}
