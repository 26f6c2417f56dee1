package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mallify-hub/internal/event"
	"mallify-hub/internal/metrics"
	"mallify-hub/internal/model"
	"mallify-hub/internal/repository"
)

const (
	RoleAdmin         = "admin"
	RoleBoutiqueOwner = "boutique_owner"

	flashSaleListDefaultPage = 1
	flashSaleListDefaultSize = 20
	flashSaleListMaxPageSize = repository.MaxPageSize
	flashSaleNameMaxLength   = 200
	customerIDMaxLength      = 64
	flashSaleMaxProducts     = 500
	productStockMax          = 1_000_000
)

var (
	productIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)
	// price × productStockMax must fit the NUMERIC(16,2) purchase amount column.
	productPriceMax = decimal.RequireFromString("99999999.99")
)

var (
	ErrFlashSaleNotFound        = errors.New("flash sale not found")
	ErrInvalidFlashSaleID       = errors.New("invalid flash sale id")
	ErrInvalidFlashSaleInput    = errors.New("invalid flash sale input")
	ErrInvalidSchedule          = errors.New("start time must be before end time")
	ErrStatusNotUpdatable       = errors.New("status cannot be changed through update")
	ErrFlashSaleNotEditable     = errors.New("only scheduled flash sales can be updated")
	ErrFlashSaleAlreadyEnded    = errors.New("flash sale has already ended")
	ErrFlashSaleAlreadyCanceled = errors.New("flash sale is already cancelled")
	ErrFlashSaleClosed          = errors.New("flash sale is closed")
	ErrDuplicateProduct         = errors.New("product already in flash sale")
	ErrProductNotInSale         = errors.New("product not found in flash sale")
	ErrSaleNotActive            = errors.New("flash sale is not active")
	ErrInvalidQuantity          = errors.New("quantity must be positive")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrQuotaExceeded            = errors.New("purchase exceeds per-customer limit")
	ErrForbidden                = errors.New("forbidden")
)

// Actor is the authenticated caller. A nil *Actor is an anonymous caller.
type Actor struct {
	UserID     string
	Role       string
	BoutiqueID string
}

func (a *Actor) IsAdmin() bool {
	return a != nil && strings.EqualFold(a.Role, RoleAdmin)
}

func (a *Actor) owns(boutiqueID uuid.UUID) bool {
	if a == nil {
		return false
	}
	if a.IsAdmin() {
		return true
	}
	return strings.EqualFold(a.Role, RoleBoutiqueOwner) && a.BoutiqueID == boutiqueID.String()
}

type ActiveSaleCache interface {
	GetActive(ctx context.Context) ([]*model.FlashSale, bool, error)
	SetActive(ctx context.Context, sales []*model.FlashSale) error
	Invalidate(ctx context.Context) error
}

type ProductLineInput struct {
	ProductID       string           `json:"product_id"`
	OriginalPrice   decimal.Decimal  `json:"original_price"`
	SalePrice       decimal.Decimal  `json:"sale_price"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	StockRemaining  int              `json:"stock_remaining"`
}

type VisibilityInput struct {
	IsPublic           *bool `json:"is_public"`
	NotifyCustomers    *bool `json:"notify_customers"`
	FeaturedOnHomepage *bool `json:"featured_on_homepage"`
}

type CreateFlashSaleRequest struct {
	BoutiqueID  string                  `json:"boutique_id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Type        string                  `json:"type"`
	StartAt     time.Time               `json:"start_at"`
	EndAt       time.Time               `json:"end_at"`
	Products    []ProductLineInput      `json:"products"`
	Rules       *model.EligibilityRules `json:"rules"`
	Visibility  *VisibilityInput        `json:"visibility"`
	Metadata    map[string]interface{}  `json:"metadata"`
}

// UpdateFlashSaleRequest lists every field the general update may touch.
type UpdateFlashSaleRequest struct {
	Name        *string                 `json:"name"`
	Description *string                 `json:"description"`
	Type        *string                 `json:"type"`
	StartAt     *time.Time              `json:"start_at"`
	EndAt       *time.Time              `json:"end_at"`
	Rules       *model.EligibilityRules `json:"rules"`
	Visibility  *VisibilityInput        `json:"visibility"`
	Metadata    map[string]interface{}  `json:"metadata"`
	Status      *string                 `json:"status"`
}

type PurchaseRequest struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	CustomerID string `json:"customer_id"`
}

type PurchaseResult struct {
	SaleID         string          `json:"sale_id"`
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	RemainingStock int             `json:"remaining_stock"`
	UnitsSold      int             `json:"units_sold"`
	Amount         decimal.Decimal `json:"amount"`
	Participants   int64           `json:"participants"`
	Revenue        decimal.Decimal `json:"revenue"`
	SoldOut        bool            `json:"sold_out"`
	PurchaseID     string          `json:"purchase_id"`
}

type FlashSaleListQuery struct {
	BoutiqueID string
	Status     string
	Type       string
	Page       int
	PageSize   int
}

type ActiveFlashSale struct {
	*model.FlashSale
	HoursRemaining   int64 `json:"hours_remaining"`
	MinutesRemaining int64 `json:"minutes_remaining"`
	TimeRemainingMs  int64 `json:"time_remaining_ms"`
}

type SweepResult struct {
	Activated int `json:"activated"`
	Ended     int `json:"ended"`
}

type FlashSaleService struct {
	repo   repository.FlashSaleRepository
	cache  ActiveSaleCache
	bus    *event.Bus
	logger *zap.Logger

	now func() time.Time
}

func NewFlashSaleService(
	repo repository.FlashSaleRepository,
	cache ActiveSaleCache,
	bus *event.Bus,
	logger *zap.Logger,
) *FlashSaleService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FlashSaleService{
		repo:   repo,
		cache:  cache,
		bus:    bus,
		logger: logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *FlashSaleService) Create(ctx context.Context, actor *Actor, req CreateFlashSaleRequest) (*model.FlashSale, error) {
	if actor == nil {
		return nil, ErrForbidden
	}

	boutiqueRaw := strings.TrimSpace(req.BoutiqueID)
	if boutiqueRaw == "" && !actor.IsAdmin() {
		boutiqueRaw = actor.BoutiqueID
	}
	boutiqueID, err := uuid.Parse(boutiqueRaw)
	if err != nil {
		return nil, ErrInvalidFlashSaleInput
	}
	if !actor.owns(boutiqueID) {
		return nil, ErrForbidden
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > flashSaleNameMaxLength {
		return nil, ErrInvalidFlashSaleInput
	}

	saleType := model.FlashSaleTypeFlashSale
	if strings.TrimSpace(req.Type) != "" {
		saleType = model.FlashSaleType(strings.TrimSpace(req.Type))
		if !saleType.Valid() {
			return nil, ErrInvalidFlashSaleInput
		}
	}

	if req.StartAt.IsZero() || req.EndAt.IsZero() {
		return nil, ErrInvalidFlashSaleInput
	}
	if !req.StartAt.Before(req.EndAt) {
		return nil, ErrInvalidSchedule
	}

	if len(req.Products) > flashSaleMaxProducts {
		return nil, ErrInvalidFlashSaleInput
	}
	products := make([]model.FlashSaleProduct, 0, len(req.Products))
	seen := make(map[string]struct{}, len(req.Products))
	for _, input := range req.Products {
		product, err := buildProductLine(input)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[product.ProductID]; dup {
			return nil, ErrDuplicateProduct
		}
		seen[product.ProductID] = struct{}{}
		products = append(products, product)
	}

	rules := model.EligibilityRules{MinPurchaseAmount: decimal.Zero}
	if req.Rules != nil {
		rules = *req.Rules
		if err := validateRules(rules); err != nil {
			return nil, err
		}
	}

	visibility := model.Visibility{IsPublic: true}
	applyVisibility(&visibility, req.Visibility)

	now := s.now()
	status := model.FlashSaleStatusScheduled
	if !req.StartAt.After(now) {
		status = model.FlashSaleStatusActive
	}

	sale := &model.FlashSale{
		ID:          uuid.New(),
		BoutiqueID:  boutiqueID,
		Name:        name,
		Description: req.Description,
		Type:        saleType,
		Status:      status,
		StartAt:     req.StartAt.UTC(),
		EndAt:       req.EndAt.UTC(),
		Products:    products,
		Rules:       rules,
		Visibility:  visibility,
		Counters: model.FlashSaleCounters{
			Revenue:        decimal.Zero,
			ConversionRate: decimal.Zero,
		},
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if createdBy, err := uuid.Parse(actor.UserID); err == nil {
		sale.CreatedBy = &createdBy
	}

	if err := s.repo.Create(ctx, sale); err != nil {
		return nil, fmt.Errorf("create flash sale: %w", err)
	}

	s.publishSale(event.EventFlashSaleCreated, sale, "")
	if sale.Status == model.FlashSaleStatusActive {
		s.publishSale(event.EventFlashSaleActivated, sale, "")
	}
	s.invalidateActive(ctx)

	return sale, nil
}

func (s *FlashSaleService) Update(
	ctx context.Context,
	actor *Actor,
	rawID string,
	req UpdateFlashSaleRequest,
) (*model.FlashSale, error) {
	if req.Status != nil {
		return nil, ErrStatusNotUpdatable
	}

	sale, err := s.loadOwned(ctx, actor, rawID)
	if err != nil {
		return nil, err
	}
	if sale.Status != model.FlashSaleStatusScheduled {
		return nil, ErrFlashSaleNotEditable
	}

	updated := sale.Clone()
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > flashSaleNameMaxLength {
			return nil, ErrInvalidFlashSaleInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.Type != nil {
		saleType := model.FlashSaleType(strings.TrimSpace(*req.Type))
		if !saleType.Valid() {
			return nil, ErrInvalidFlashSaleInput
		}
		updated.Type = saleType
	}
	if req.StartAt != nil {
		updated.StartAt = req.StartAt.UTC()
	}
	if req.EndAt != nil {
		updated.EndAt = req.EndAt.UTC()
	}
	if !updated.StartAt.Before(updated.EndAt) {
		return nil, ErrInvalidSchedule
	}
	if req.Rules != nil {
		if err := validateRules(*req.Rules); err != nil {
			return nil, err
		}
		updated.Rules = *req.Rules
	}
	applyVisibility(&updated.Visibility, req.Visibility)
	if len(req.Metadata) > 0 {
		if updated.Metadata == nil {
			updated.Metadata = make(map[string]interface{}, len(req.Metadata))
		}
		for key, value := range req.Metadata {
			updated.Metadata[key] = value
		}
	}
	updated.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, updated, model.FlashSaleStatusScheduled); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrFlashSaleNotFound
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, ErrFlashSaleNotEditable
		default:
			return nil, fmt.Errorf("update flash sale %s: %w", sale.ID, err)
		}
	}

	s.invalidateActive(ctx)
	return updated, nil
}

func (s *FlashSaleService) Cancel(ctx context.Context, actor *Actor, rawID, reason string) (*model.FlashSale, error) {
	sale, err := s.loadOwned(ctx, actor, rawID)
	if err != nil {
		return nil, err
	}
	if err := cancelBlockedBy(sale.Status); err != nil {
		return nil, err
	}

	now := s.now()
	reason = strings.TrimSpace(reason)
	cancelled, err := s.repo.Cancel(ctx, sale.ID, map[string]interface{}{
		model.MetadataCancellationReason: reason,
		model.MetadataCancelledAt:        now.Format(time.RFC3339),
	}, now)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrFlashSaleNotFound
		case errors.Is(err, repository.ErrStatusConflict):
			// Lost a race with the sweep or another cancel.
			current, findErr := s.repo.FindByID(ctx, sale.ID)
			if findErr != nil {
				return nil, fmt.Errorf("reload flash sale %s: %w", sale.ID, findErr)
			}
			if blocked := cancelBlockedBy(current.Status); blocked != nil {
				return nil, blocked
			}
			return nil, ErrFlashSaleAlreadyEnded
		default:
			return nil, fmt.Errorf("cancel flash sale %s: %w", sale.ID, err)
		}
	}

	s.publishSale(event.EventFlashSaleCancelled, cancelled, reason)
	s.invalidateActive(ctx)
	return cancelled, nil
}

func (s *FlashSaleService) AddProduct(
	ctx context.Context,
	actor *Actor,
	rawID string,
	input ProductLineInput,
) (*model.FlashSale, error) {
	sale, err := s.loadOwned(ctx, actor, rawID)
	if err != nil {
		return nil, err
	}
	if sale.Status.Terminal() {
		return nil, ErrFlashSaleClosed
	}
	if len(sale.Products) >= flashSaleMaxProducts {
		return nil, ErrInvalidFlashSaleInput
	}

	product, err := buildProductLine(input)
	if err != nil {
		return nil, err
	}
	if idx, _ := sale.FindProduct(product.ProductID); idx >= 0 {
		return nil, ErrDuplicateProduct
	}

	if err := s.repo.AddProduct(ctx, sale.ID, product, s.now()); err != nil {
		return nil, s.translateLineError(err, sale.ID, "add product")
	}

	s.invalidateActive(ctx)
	return s.reload(ctx, sale.ID)
}

func (s *FlashSaleService) RemoveProduct(
	ctx context.Context,
	actor *Actor,
	rawID string,
	productID string,
) (*model.FlashSale, error) {
	productID = strings.TrimSpace(productID)
	if !productIDPattern.MatchString(productID) {
		return nil, ErrInvalidFlashSaleInput
	}

	sale, err := s.loadOwned(ctx, actor, rawID)
	if err != nil {
		return nil, err
	}
	if sale.Status.Terminal() {
		return nil, ErrFlashSaleClosed
	}

	if idx, _ := sale.FindProduct(productID); idx < 0 {
		return nil, ErrProductNotInSale
	}

	if err := s.repo.RemoveProduct(ctx, sale.ID, productID, s.now()); err != nil {
		return nil, s.translateLineError(err, sale.ID, "remove product")
	}

	s.invalidateActive(ctx)
	return s.reload(ctx, sale.ID)
}

func (s *FlashSaleService) RecordPurchase(
	ctx context.Context,
	actor *Actor,
	rawID string,
	req PurchaseRequest,
) (*PurchaseResult, error) {
	saleID, err := parseFlashSaleID(rawID)
	if err != nil {
		return nil, err
	}

	productID := strings.TrimSpace(req.ProductID)
	if !productIDPattern.MatchString(productID) {
		return nil, ErrInvalidFlashSaleInput
	}
	if req.Quantity <= 0 || req.Quantity > productStockMax {
		return nil, ErrInvalidQuantity
	}
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" && actor != nil {
		customerID = actor.UserID
	}
	if len(customerID) > customerIDMaxLength {
		return nil, ErrInvalidFlashSaleInput
	}

	started := time.Now()
	outcome, err := s.repo.ApplyPurchase(ctx, repository.PurchaseParams{
		SaleID:     saleID,
		ProductID:  productID,
		CustomerID: customerID,
		Quantity:   req.Quantity,
		At:         s.now(),
	})
	metrics.ObservePurchaseDuration(time.Since(started))
	if err != nil {
		result, translated := translatePurchaseError(err)
		metrics.IncPurchase(result)
		if translated == nil {
			return nil, fmt.Errorf("apply purchase on flash sale %s: %w", saleID, err)
		}
		return nil, translated
	}

	metrics.IncPurchase(metrics.PurchaseResultOK)
	metrics.AddSale(outcome.Purchase.Quantity, outcome.Purchase.Amount.InexactFloat64())

	s.publish(event.EventFlashSalePurchase, event.PurchasePayload{
		SaleID:         saleID.String(),
		BoutiqueID:     outcome.BoutiqueID.String(),
		ProductID:      productID,
		CustomerID:     customerID,
		Quantity:       req.Quantity,
		Amount:         outcome.Purchase.Amount,
		StockRemaining: outcome.StockRemaining,
		Timestamp:      outcome.Purchase.CreatedAt,
	})
	if outcome.SoldOut {
		s.publish(event.EventFlashSaleSoldOut, event.SaleChangedPayload{
			SaleID:     saleID.String(),
			BoutiqueID: outcome.BoutiqueID.String(),
			Status:     string(model.FlashSaleStatusActive),
			Timestamp:  outcome.Purchase.CreatedAt,
		})
	}

	return &PurchaseResult{
		SaleID:         saleID.String(),
		ProductID:      productID,
		Quantity:       req.Quantity,
		RemainingStock: outcome.StockRemaining,
		UnitsSold:      outcome.UnitsSold,
		Amount:         outcome.Purchase.Amount,
		Participants:   outcome.Participants,
		Revenue:        outcome.Revenue,
		SoldOut:        outcome.SoldOut,
		PurchaseID:     outcome.Purchase.ID.String(),
	}, nil
}

// CanPurchaseOnBehalf reports whether actor may record a purchase for another customer on the sale.
func (s *FlashSaleService) CanPurchaseOnBehalf(ctx context.Context, actor *Actor, rawID string) (bool, error) {
	if actor == nil {
		return false, nil
	}
	if actor.IsAdmin() {
		return true, nil
	}
	if !strings.EqualFold(actor.Role, RoleBoutiqueOwner) {
		return false, nil
	}

	_, err := s.loadOwned(ctx, actor, rawID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrForbidden):
		return false, nil
	default:
		return false, err
	}
}

func (s *FlashSaleService) RecordView(ctx context.Context, rawID string) (int64, error) {
	saleID, err := parseFlashSaleID(rawID)
	if err != nil {
		return 0, err
	}

	views, err := s.repo.IncrementViews(ctx, saleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrFlashSaleNotFound
		}
		return 0, fmt.Errorf("record view on flash sale %s: %w", saleID, err)
	}
	return views, nil
}

// Get hides private sales from callers that do not own them.
func (s *FlashSaleService) Get(ctx context.Context, actor *Actor, rawID string) (*model.FlashSale, error) {
	saleID, err := parseFlashSaleID(rawID)
	if err != nil {
		return nil, err
	}

	sale, err := s.reload(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if !sale.Visibility.IsPublic && !actor.owns(sale.BoutiqueID) {
		return nil, ErrFlashSaleNotFound
	}
	return sale, nil
}

func (s *FlashSaleService) List(
	ctx context.Context,
	actor *Actor,
	query FlashSaleListQuery,
) ([]*model.FlashSale, int64, int, int, error) {
	page, pageSize := normalizeFlashSalePage(query.Page, query.PageSize)

	filter := repository.FlashSaleListFilter{
		PublicOnly: !actor.IsAdmin(),
		Pagination: repository.PageOf(page, pageSize),
	}

	if raw := strings.TrimSpace(query.BoutiqueID); raw != "" {
		boutiqueID, err := uuid.Parse(raw)
		if err != nil {
			return nil, 0, page, pageSize, ErrInvalidFlashSaleInput
		}
		filter.BoutiqueID = &boutiqueID
		if actor.owns(boutiqueID) {
			filter.PublicOnly = false
		}
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status := model.FlashSaleStatus(raw)
		if !status.Valid() {
			return nil, 0, page, pageSize, ErrInvalidFlashSaleInput
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(query.Type); raw != "" {
		saleType := model.FlashSaleType(raw)
		if !saleType.Valid() {
			return nil, 0, page, pageSize, ErrInvalidFlashSaleInput
		}
		filter.Type = &saleType
	}

	sales, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, page, pageSize, fmt.Errorf("list flash sales: %w", err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, page, pageSize, fmt.Errorf("count flash sales: %w", err)
	}

	return sales, total, page, pageSize, nil
}

// ListActive returns public sales whose window contains now, each annotated with the time left.
func (s *FlashSaleService) ListActive(ctx context.Context) ([]ActiveFlashSale, error) {
	sales, hit, err := s.activeFromCache(ctx)
	if err != nil {
		s.logger.Warn("read active sale cache failed", zap.Error(err))
	}
	if !hit {
		sales, err = s.repo.ListActive(ctx, s.now())
		if err != nil {
			return nil, fmt.Errorf("list active flash sales: %w", err)
		}
		if s.cache != nil {
			if err := s.cache.SetActive(ctx, sales); err != nil {
				s.logger.Warn("write active sale cache failed", zap.Error(err))
			}
		}
	}

	now := s.now()
	out := make([]ActiveFlashSale, 0, len(sales))
	for _, sale := range sales {
		if sale == nil || !sale.Visibility.IsPublic || sale.Status != model.FlashSaleStatusActive {
			continue
		}
		if sale.StartAt.After(now) || sale.EndAt.Before(now) {
			continue
		}
		out = append(out, annotateRemaining(sale, now))
	}
	return out, nil
}

func (s *FlashSaleService) Performance(ctx context.Context, actor *Actor, rawID string) (*FlashSalePerformance, error) {
	sale, err := s.loadOwned(ctx, actor, rawID)
	if err != nil {
		return nil, err
	}

	perf := ComputePerformance(sale)
	return &perf, nil
}

// Summary scopes owners to their own boutique; admins may pass any boutique or none.
func (s *FlashSaleService) Summary(ctx context.Context, actor *Actor, rawBoutiqueID string) (*repository.BoutiqueSummary, error) {
	if actor == nil {
		return nil, ErrForbidden
	}

	raw := strings.TrimSpace(rawBoutiqueID)
	if raw == "" && !actor.IsAdmin() {
		raw = actor.BoutiqueID
	}

	var boutiqueID *uuid.UUID
	if raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, ErrInvalidFlashSaleInput
		}
		if !actor.owns(parsed) {
			return nil, ErrForbidden
		}
		boutiqueID = &parsed
	} else if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	summary, err := s.repo.Summary(ctx, boutiqueID)
	if err != nil {
		return nil, fmt.Errorf("summarize flash sales: %w", err)
	}
	summary.Revenue = summary.Revenue.Round(2)
	return summary, nil
}

func (s *FlashSaleService) ListPurchases(
	ctx context.Context,
	actor *Actor,
	rawID string,
	page, pageSize int,
) ([]*model.FlashSalePurchase, int64, int, int, error) {
	page, pageSize = normalizeFlashSalePage(page, pageSize)

	sale, err := s.loadOwned(ctx, actor, rawID)
	if err != nil {
		return nil, 0, page, pageSize, err
	}

	items, total, err := s.repo.ListPurchases(ctx, sale.ID, repository.PageOf(page, pageSize))
	if err != nil {
		return nil, 0, page, pageSize, fmt.Errorf("list purchases of flash sale %s: %w", sale.ID, err)
	}
	return items, total, page, pageSize, nil
}

// Sweep activates due scheduled sales, then ends expired active ones. Repeated calls are no-ops.
func (s *FlashSaleService) Sweep(ctx context.Context) (*SweepResult, error) {
	now := s.now()

	activated, err := s.repo.ActivateDue(ctx, now)
	if err != nil {
		metrics.IncSweepError()
		return nil, fmt.Errorf("activate due flash sales: %w", err)
	}
	ended, err := s.repo.EndDue(ctx, now)
	if err != nil {
		metrics.IncSweepError()
		return nil, fmt.Errorf("end expired flash sales: %w", err)
	}

	for _, sale := range activated {
		s.publishSale(event.EventFlashSaleActivated, sale, "")
	}
	for _, sale := range ended {
		s.publishSale(event.EventFlashSaleEnded, sale, "")
	}

	result := &SweepResult{Activated: len(activated), Ended: len(ended)}
	metrics.AddSweepTransitions(result.Activated, result.Ended)
	if result.Activated > 0 || result.Ended > 0 {
		s.invalidateActive(ctx)
		s.logger.Info("flash sale sweep applied",
			zap.Int("activated", result.Activated),
			zap.Int("ended", result.Ended),
		)
	}

	return result, nil
}

func (s *FlashSaleService) RefreshStatusGauge(ctx context.Context) error {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return err
	}

	seen := map[model.FlashSaleStatus]int64{
		model.FlashSaleStatusScheduled: 0,
		model.FlashSaleStatusActive:    0,
		model.FlashSaleStatusEnded:     0,
		model.FlashSaleStatusCancelled: 0,
	}
	for _, item := range counts {
		seen[item.Status] = item.Total
	}
	for status, total := range seen {
		metrics.SetFlashSaleCount(string(status), total)
	}
	return nil
}

func (s *FlashSaleService) loadOwned(ctx context.Context, actor *Actor, rawID string) (*model.FlashSale, error) {
	saleID, err := parseFlashSaleID(rawID)
	if err != nil {
		return nil, err
	}

	sale, err := s.reload(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(sale.BoutiqueID) {
		return nil, ErrForbidden
	}
	return sale, nil
}

func (s *FlashSaleService) reload(ctx context.Context, saleID uuid.UUID) (*model.FlashSale, error) {
	sale, err := s.repo.FindByID(ctx, saleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFlashSaleNotFound
		}
		return nil, fmt.Errorf("find flash sale %s: %w", saleID, err)
	}
	return sale, nil
}

func (s *FlashSaleService) activeFromCache(ctx context.Context) ([]*model.FlashSale, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	return s.cache.GetActive(ctx)
}

func (s *FlashSaleService) invalidateActive(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate active sale cache failed", zap.Error(err))
	}
}

func (s *FlashSaleService) translateLineError(err error, saleID uuid.UUID, op string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrFlashSaleNotFound
	case errors.Is(err, repository.ErrStatusConflict):
		return ErrFlashSaleClosed
	case errors.Is(err, repository.ErrDuplicateProduct):
		return ErrDuplicateProduct
	case errors.Is(err, repository.ErrProductNotFound):
		return ErrProductNotInSale
	default:
		return fmt.Errorf("%s on flash sale %s: %w", op, saleID, err)
	}
}

func (s *FlashSaleService) publishSale(name string, sale *model.FlashSale, reason string) {
	if sale == nil {
		return
	}
	s.publish(name, event.SaleChangedPayload{
		SaleID:          sale.ID.String(),
		BoutiqueID:      sale.BoutiqueID.String(),
		Name:            sale.Name,
		Status:          string(sale.Status),
		StartAt:         sale.StartAt,
		EndAt:           sale.EndAt,
		NotifyCustomers: sale.Visibility.NotifyCustomers,
		Reason:          reason,
		Timestamp:       s.now(),
	})
}

func (s *FlashSaleService) publish(name string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(name, payload)
}

func translatePurchaseError(err error) (string, error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return metrics.PurchaseResultNotFound, ErrFlashSaleNotFound
	case errors.Is(err, repository.ErrProductNotFound):
		return metrics.PurchaseResultNotFound, ErrProductNotInSale
	case errors.Is(err, repository.ErrSaleNotActive):
		return metrics.PurchaseResultNotActive, ErrSaleNotActive
	case errors.Is(err, repository.ErrInsufficientStock):
		return metrics.PurchaseResultInsufficientStock, ErrInsufficientStock
	case errors.Is(err, repository.ErrQuotaExceeded):
		return metrics.PurchaseResultQuotaExceeded, ErrQuotaExceeded
	default:
		return metrics.PurchaseResultError, nil
	}
}

func cancelBlockedBy(status model.FlashSaleStatus) error {
	switch status {
	case model.FlashSaleStatusEnded:
		return ErrFlashSaleAlreadyEnded
	case model.FlashSaleStatusCancelled:
		return ErrFlashSaleAlreadyCanceled
	default:
		return nil
	}
}

func buildProductLine(input ProductLineInput) (model.FlashSaleProduct, error) {
	productID := strings.TrimSpace(input.ProductID)
	if !productIDPattern.MatchString(productID) {
		return model.FlashSaleProduct{}, ErrInvalidFlashSaleInput
	}
	if input.StockRemaining < 0 || input.StockRemaining > productStockMax {
		return model.FlashSaleProduct{}, ErrInvalidFlashSaleInput
	}
	if input.SalePrice.IsNegative() || input.OriginalPrice.IsNegative() || input.OriginalPrice.GreaterThan(productPriceMax) {
		return model.FlashSaleProduct{}, ErrInvalidFlashSaleInput
	}
	if input.OriginalPrice.LessThan(input.SalePrice) {
		return model.FlashSaleProduct{}, ErrInvalidFlashSaleInput
	}

	discount := DiscountPercent(input.OriginalPrice, input.SalePrice)
	if input.DiscountPercent != nil {
		if input.DiscountPercent.IsNegative() || input.DiscountPercent.GreaterThan(hundred) {
			return model.FlashSaleProduct{}, ErrInvalidFlashSaleInput
		}
		discount = input.DiscountPercent.Round(2)
	}

	return model.FlashSaleProduct{
		ProductID:       productID,
		OriginalPrice:   input.OriginalPrice.Round(2),
		SalePrice:       input.SalePrice.Round(2),
		DiscountPercent: discount,
		StockRemaining:  input.StockRemaining,
		UnitsSold:       0,
	}, nil
}

func validateRules(rules model.EligibilityRules) error {
	if rules.MaxQuantityPerCustomer < 0 || rules.MinPurchaseAmount.IsNegative() {
		return ErrInvalidFlashSaleInput
	}
	return nil
}

func applyVisibility(target *model.Visibility, input *VisibilityInput) {
	if input == nil {
		return
	}
	if input.IsPublic != nil {
		target.IsPublic = *input.IsPublic
	}
	if input.NotifyCustomers != nil {
		target.NotifyCustomers = *input.NotifyCustomers
	}
	if input.FeaturedOnHomepage != nil {
		target.FeaturedOnHomepage = *input.FeaturedOnHomepage
	}
}

func annotateRemaining(sale *model.FlashSale, now time.Time) ActiveFlashSale {
	remaining := sale.EndAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	ms := remaining.Milliseconds()
	return ActiveFlashSale{
		FlashSale:        sale,
		HoursRemaining:   ms / int64(time.Hour/time.Millisecond),
		MinutesRemaining: (ms % int64(time.Hour/time.Millisecond)) / int64(time.Minute/time.Millisecond),
		TimeRemainingMs:  ms,
	}
}

func parseFlashSaleID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, ErrInvalidFlashSaleID
	}
	return id, nil
}

func normalizeFlashSalePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = flashSaleListDefaultPage
	}
	if page > repository.MaxPage {
		page = repository.MaxPage
	}
	if pageSize <= 0 {
		pageSize = flashSaleListDefaultSize
	}
	if pageSize > flashSaleListMaxPageSize {
		pageSize = flashSaleListMaxPageSize
	}
	return page, pageSize
}
