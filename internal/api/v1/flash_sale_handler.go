package v1

import (
	"crypto/rsa"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mallify-hub/internal/api/middleware"
	"mallify-hub/internal/api/response"
	inputsanitize "mallify-hub/internal/api/sanitize"
	"mallify-hub/internal/model"
	"mallify-hub/internal/service"
)

type FlashSaleHandler struct {
	flashSaleService *service.FlashSaleService
	logger           *zap.Logger
}

type FlashSaleRouteDeps struct {
	Service       *service.FlashSaleService
	PublicKey     *rsa.PublicKey
	Audit         *middleware.AuditRecorder
	ViewLimiter   *middleware.RateLimiter
	InternalToken string
	Logger        *zap.Logger
}

type productLineRequest struct {
	ProductID       string           `json:"product_id" binding:"required"`
	OriginalPrice   decimal.Decimal  `json:"original_price"`
	SalePrice       decimal.Decimal  `json:"sale_price"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	StockRemaining  int              `json:"stock_remaining"`
}

type visibilityRequest struct {
	IsPublic           *bool `json:"is_public"`
	NotifyCustomers    *bool `json:"notify_customers"`
	FeaturedOnHomepage *bool `json:"featured_on_homepage"`
}

type createFlashSaleRequest struct {
	BoutiqueID  string                  `json:"boutique_id"`
	Name        string                  `json:"name" binding:"required"`
	Description string                  `json:"description"`
	Type        string                  `json:"type"`
	StartAt     time.Time               `json:"start_at" binding:"required"`
	EndAt       time.Time               `json:"end_at" binding:"required"`
	Products    []productLineRequest    `json:"products"`
	Rules       *model.EligibilityRules `json:"rules"`
	Visibility  *visibilityRequest      `json:"visibility"`
	Metadata    map[string]interface{}  `json:"metadata"`
}

type updateFlashSaleRequest struct {
	Name        *string                 `json:"name"`
	Description *string                 `json:"description"`
	Type        *string                 `json:"type"`
	StartAt     *time.Time              `json:"start_at"`
	EndAt       *time.Time              `json:"end_at"`
	Rules       *model.EligibilityRules `json:"rules"`
	Visibility  *visibilityRequest      `json:"visibility"`
	Metadata    map[string]interface{}  `json:"metadata"`
	Status      *string                 `json:"status"`
}

type cancelFlashSaleRequest struct {
	Reason string `json:"reason"`
}

type purchaseRequest struct {
	ProductID  string `json:"product_id" binding:"required"`
	Quantity   int    `json:"quantity"`
	CustomerID string `json:"customer_id"`
}

func NewFlashSaleHandler(flashSaleService *service.FlashSaleService, logger *zap.Logger) *FlashSaleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlashSaleHandler{flashSaleService: flashSaleService, logger: logger}
}

func RegisterFlashSaleRoutes(group *gin.RouterGroup, deps FlashSaleRouteDeps) {
	handler := NewFlashSaleHandler(deps.Service, deps.Logger)
	viewLimiter := deps.ViewLimiter
	if viewLimiter == nil {
		viewLimiter = middleware.NewRateLimiter(30, time.Minute)
	}

	sales := group.Group("/flash-sales")

	public := sales.Group("")
	public.Use(middleware.OptionalJWTAuth(deps.PublicKey))
	public.GET("", handler.List)
	public.GET("/active", handler.ListActive)
	public.GET("/:id", handler.Get)
	public.POST("/:id/view", viewLimiter.Handler("view:{id}:{ip}"), handler.RecordView)

	sales.POST("/sweep",
		middleware.InternalTokenAuth(deps.InternalToken, false),
		deps.Audit.Handler("flash_sale.sweep", "flash_sale"),
		handler.Sweep,
	)

	authed := sales.Group("")
	authed.Use(middleware.JWTAuth(deps.PublicKey))
	authed.GET("/summary", handler.Summary)
	authed.POST("/:id/purchase", deps.Audit.Handler("flash_sale.purchase", "flash_sale"), handler.Purchase)

	owner := authed.Group("")
	owner.Use(middleware.RequireRole(service.RoleAdmin, service.RoleBoutiqueOwner))
	owner.POST("", deps.Audit.Handler("flash_sale.create", "flash_sale"), handler.Create)
	owner.PUT("/:id", deps.Audit.Handler("flash_sale.update", "flash_sale"), handler.Update)
	owner.POST("/:id/cancel", deps.Audit.Handler("flash_sale.cancel", "flash_sale"), handler.Cancel)
	owner.POST("/:id/products", deps.Audit.Handler("flash_sale.add_product", "flash_sale"), handler.AddProduct)
	owner.DELETE("/:id/products/:productId", deps.Audit.Handler("flash_sale.remove_product", "flash_sale"), handler.RemoveProduct)
	owner.GET("/:id/performance", handler.Performance)
	owner.GET("/:id/purchases", handler.ListPurchases)
}

func (h *FlashSaleHandler) Create(c *gin.Context) {
	actor := actorFromContext(c)

	var req createFlashSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid request")
		return
	}

	products := make([]service.ProductLineInput, 0, len(req.Products))
	for _, item := range req.Products {
		products = append(products, toProductLineInput(item))
	}

	sale, err := h.flashSaleService.Create(c.Request.Context(), actor, service.CreateFlashSaleRequest{
		BoutiqueID:  strings.TrimSpace(req.BoutiqueID),
		Name:        inputsanitize.Text(req.Name),
		Description: inputsanitize.Markdown(req.Description),
		Type:        strings.TrimSpace(req.Type),
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Products:    products,
		Rules:       sanitizeRules(req.Rules),
		Visibility:  toVisibilityInput(req.Visibility),
		Metadata:    inputsanitize.Metadata(req.Metadata),
	})
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Response{
		Code:    response.CodeSuccess,
		Message: "success",
		Data:    sale,
	})
}

func (h *FlashSaleHandler) List(c *gin.Context) {
	sales, total, page, pageSize, err := h.flashSaleService.List(c.Request.Context(), actorFromContext(c), service.FlashSaleListQuery{
		BoutiqueID: c.Query("boutique_id"),
		Status:     c.Query("status"),
		Type:       c.Query("type"),
		Page:       parseIntOrDefault(c.Query("page"), 1),
		PageSize:   parseIntOrDefault(firstNonEmpty(c.Query("limit"), c.Query("page_size")), 0),
	})
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}

	response.Paginated(c, gin.H{"sales": sales}, page, pageSize, total)
}

func (h *FlashSaleHandler) ListActive(c *gin.Context) {
	sales, err := h.flashSaleService.ListActive(c.Request.Context())
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"sales": sales})
}

func (h *FlashSaleHandler) Get(c *gin.Context) {
	sale, err := h.flashSaleService.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Success(c, sale)
}

func (h *FlashSaleHandler) Update(c *gin.Context) {
	var req updateFlashSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid request")
		return
	}

	sale, err := h.flashSaleService.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), service.UpdateFlashSaleRequest{
		Name:        inputsanitize.TextPtr(req.Name),
		Description: inputsanitize.MarkdownPtr(req.Description),
		Type:        req.Type,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Rules:       sanitizeRules(req.Rules),
		Visibility:  toVisibilityInput(req.Visibility),
		Metadata:    inputsanitize.Metadata(req.Metadata),
		Status:      req.Status,
	})
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Success(c, sale)
}

func (h *FlashSaleHandler) Cancel(c *gin.Context) {
	var req cancelFlashSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid request")
		return
	}

	sale, err := h.flashSaleService.Cancel(c.Request.Context(), actorFromContext(c), c.Param("id"), inputsanitize.Text(req.Reason))
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Success(c, sale)
}

func (h *FlashSaleHandler) AddProduct(c *gin.Context) {
	var req productLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid request")
		return
	}

	sale, err := h.flashSaleService.AddProduct(c.Request.Context(), actorFromContext(c), c.Param("id"), toProductLineInput(req))
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Success(c, sale)
}

func (h *FlashSaleHandler) RemoveProduct(c *gin.Context) {
	sale, err := h.flashSaleService.RemoveProduct(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("productId"))
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Success(c, sale)
}

func (h *FlashSaleHandler) Purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "invalid request")
		return
	}

	actor := actorFromContext(c)
	customerID := strings.TrimSpace(req.CustomerID)
	// Only admins and the sale's own boutique may record a purchase on behalf of another customer.
	if customerID != "" {
		allowed, err := h.flashSaleService.CanPurchaseOnBehalf(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			h.handleFlashSaleServiceError(c, err)
			return
		}
		if !allowed {
			customerID = ""
		}
	}

	result, err := h.flashSaleService.RecordPurchase(c.Request.Context(), actor, c.Param("id"), service.PurchaseRequest{
		ProductID:  strings.TrimSpace(req.ProductID),
		Quantity:   req.Quantity,
		CustomerID: customerID,
	})
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *FlashSaleHandler) RecordView(c *gin.Context) {
	views, err := h.flashSaleService.RecordView(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"views": views})
}

func (h *FlashSaleHandler) Performance(c *gin.Context) {
	perf, err := h.flashSaleService.Performance(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Success(c, perf)
}

func (h *FlashSaleHandler) ListPurchases(c *gin.Context) {
	items, total, page, pageSize, err := h.flashSaleService.ListPurchases(
		c.Request.Context(),
		actorFromContext(c),
		c.Param("id"),
		parseIntOrDefault(c.Query("page"), 1),
		parseIntOrDefault(c.Query("page_size"), 0),
	)
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

func (h *FlashSaleHandler) Summary(c *gin.Context) {
	summary, err := h.flashSaleService.Summary(c.Request.Context(), actorFromContext(c), c.Query("boutique_id"))
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Success(c, summary)
}

func (h *FlashSaleHandler) Sweep(c *gin.Context) {
	result, err := h.flashSaleService.Sweep(c.Request.Context())
	if err != nil {
		h.handleFlashSaleServiceError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *FlashSaleHandler) handleFlashSaleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrFlashSaleNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrFlashSaleNotFound, "flash sale not found")
	case errors.Is(err, service.ErrProductNotInSale):
		response.Fail(c, http.StatusNotFound, response.ErrProductNotFound, "product not found in flash sale")
	case errors.Is(err, service.ErrForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, "forbidden")
	case errors.Is(err, service.ErrInvalidSchedule):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidSchedule, err.Error())
	case errors.Is(err, service.ErrFlashSaleNotEditable),
		errors.Is(err, service.ErrStatusNotUpdatable):
		response.Fail(c, http.StatusBadRequest, response.ErrFlashSaleNotEditable, err.Error())
	case errors.Is(err, service.ErrFlashSaleAlreadyEnded),
		errors.Is(err, service.ErrFlashSaleAlreadyCanceled),
		errors.Is(err, service.ErrFlashSaleClosed):
		response.Fail(c, http.StatusBadRequest, response.ErrFlashSaleStatus, err.Error())
	case errors.Is(err, service.ErrDuplicateProduct):
		response.Fail(c, http.StatusBadRequest, response.ErrDuplicateProduct, err.Error())
	case errors.Is(err, service.ErrSaleNotActive):
		response.Fail(c, http.StatusBadRequest, response.ErrSaleNotActive, err.Error())
	case errors.Is(err, service.ErrInsufficientStock):
		response.Fail(c, http.StatusBadRequest, response.ErrInsufficientStock, err.Error())
	case errors.Is(err, service.ErrQuotaExceeded):
		response.Fail(c, http.StatusBadRequest, response.ErrQuotaExceeded, err.Error())
	case errors.Is(err, service.ErrInvalidFlashSaleID),
		errors.Is(err, service.ErrInvalidFlashSaleInput),
		errors.Is(err, service.ErrInvalidQuantity):
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, err.Error())
	default:
		h.logger.Error("flash sale request failed",
			zap.String("path", c.FullPath()),
			zap.String("sale_id", c.Param("id")),
			zap.Error(err),
		)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}

func actorFromContext(c *gin.Context) *service.Actor {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return nil
	}
	return &service.Actor{
		UserID:     claims.UserID,
		Role:       claims.Role,
		BoutiqueID: claims.BoutiqueID,
	}
}

func toProductLineInput(req productLineRequest) service.ProductLineInput {
	return service.ProductLineInput{
		ProductID:       strings.TrimSpace(req.ProductID),
		OriginalPrice:   req.OriginalPrice,
		SalePrice:       req.SalePrice,
		DiscountPercent: req.DiscountPercent,
		StockRemaining:  req.StockRemaining,
	}
}

func sanitizeRules(rules *model.EligibilityRules) *model.EligibilityRules {
	if rules == nil {
		return nil
	}
	cleaned := *rules
	cleaned.EligibleTiers = inputsanitize.StringSlice(rules.EligibleTiers)
	return &cleaned
}

func toVisibilityInput(req *visibilityRequest) *service.VisibilityInput {
	if req == nil {
		return nil
	}
	return &service.VisibilityInput{
		IsPublic:           req.IsPublic,
		NotifyCustomers:    req.NotifyCustomers,
		FeaturedOnHomepage: req.FeaturedOnHomepage,
	}
}

func parseIntOrDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return def
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
