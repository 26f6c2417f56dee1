package v1

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mallify-hub/internal/api/middleware"
	"mallify-hub/internal/api/response"
	"mallify-hub/internal/model"
	"mallify-hub/internal/repository"
	"mallify-hub/internal/repository/memory"
	"mallify-hub/internal/service"
	jwtutil "mallify-hub/pkg/jwt"
)

const testInternalToken = "internal-secret"

type apiEnvelope struct {
	Code       int                  `json:"code"`
	Message    string               `json:"message"`
	Data       json.RawMessage      `json:"data"`
	Pagination *response.Pagination `json:"pagination"`
}

type recordingAuditRepo struct {
	mu         sync.Mutex
	logs       []*model.AuditLog
	lastFilter repository.AuditListFilter
}

func (r *recordingAuditRepo) Create(_ context.Context, log *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func (r *recordingAuditRepo) List(_ context.Context, filter repository.AuditListFilter) ([]*model.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter

	matched := make([]*model.AuditLog, 0, len(r.logs))
	for _, log := range r.logs {
		if filter.Action != nil && log.Action != *filter.Action {
			continue
		}
		matched = append(matched, log)
	}
	total := int64(len(matched))
	start := int(filter.Pagination.Offset)
	if start > len(matched) {
		start = len(matched)
	}
	end := start + int(filter.Pagination.Limit)
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

type handlerFixture struct {
	router     *gin.Engine
	key        *rsa.PrivateKey
	audit      *recordingAuditRepo
	recorder   *middleware.AuditRecorder
	boutiqueID string
	ownerToken string
	adminToken string
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	auditRepo := &recordingAuditRepo{}
	recorder := middleware.NewAuditRecorder(auditRepo, nil)
	svc := service.NewFlashSaleService(memory.NewFlashSaleRepository(), nil, nil, nil)

	router := gin.New()
	api := router.Group("/api/v1")
	RegisterFlashSaleRoutes(api, FlashSaleRouteDeps{
		Service:       svc,
		PublicKey:     &key.PublicKey,
		Audit:         recorder,
		InternalToken: testInternalToken,
	})

	f := &handlerFixture{
		router:     router,
		key:        key,
		audit:      auditRepo,
		recorder:   recorder,
		boutiqueID: uuid.NewString(),
	}
	f.ownerToken = f.token(t, service.RoleBoutiqueOwner, f.boutiqueID)
	f.adminToken = f.token(t, service.RoleAdmin, "")
	return f
}

func (f *handlerFixture) token(t *testing.T, role, boutiqueID string) string {
	t.Helper()
	token, err := jwtutil.GenerateAccessToken(jwtutil.NewClaims(uuid.NewString(), role, boutiqueID, time.Hour), f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (f *handlerFixture) createSale(t *testing.T, start, end time.Time, stock int) string {
	t.Helper()

	w := performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales", f.ownerToken, map[string]any{
		"name":     "Spring drop",
		"start_at": start.Format(time.RFC3339),
		"end_at":   end.Format(time.RFC3339),
		"products": []map[string]any{{
			"product_id":      "sku-1",
			"original_price":  100,
			"sale_price":      80,
			"stock_remaining": stock,
		}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	var sale model.FlashSale
	decodeAPIData(t, w, &sale)
	return sale.ID.String()
}

func performJSONRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeAPIResponse(t *testing.T, w *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v body=%s", err, w.Body.String())
	}
	return env
}

func decodeAPIData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	env := decodeAPIResponse(t, w)
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v data=%s", err, string(env.Data))
	}
}

func TestCreateFlashSale_RejectsInvertedSchedule(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	w := performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales", f.ownerToken, map[string]any{
		"name":     "Backwards",
		"start_at": now.Add(2 * time.Hour).Format(time.RFC3339),
		"end_at":   now.Add(time.Hour).Format(time.RFC3339),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if env := decodeAPIResponse(t, w); env.Code != response.ErrInvalidSchedule {
		t.Fatalf("expected code %d, got %d", response.ErrInvalidSchedule, env.Code)
	}
}

func TestCreateFlashSale_RequiresOwnerOrAdmin(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	body := map[string]any{
		"name":     "Spring drop",
		"start_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		"end_at":   time.Now().Add(2 * time.Hour).Format(time.RFC3339),
	}

	if w := performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales", "", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	customer := f.token(t, "customer", "")
	if w := performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales", customer, body); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer role, got %d", w.Code)
	}
	otherOwner := f.token(t, service.RoleBoutiqueOwner, uuid.NewString())
	body["boutique_id"] = f.boutiqueID
	if w := performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales", otherOwner, body); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign boutique, got %d", w.Code)
	}
}

func TestPurchaseFlow_DecrementsStockAndRejectsOversell(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	saleID := f.createSale(t, now.Add(-time.Hour), now.Add(time.Hour), 10)
	customer := f.token(t, "customer", "")

	w := performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales/"+saleID+"/purchase", customer, map[string]any{
		"product_id": "sku-1",
		"quantity":   3,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var result service.PurchaseResult
	decodeAPIData(t, w, &result)
	if result.RemainingStock != 7 || result.UnitsSold != 3 {
		t.Fatalf("unexpected purchase result: %+v", result)
	}

	w = performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales/"+saleID+"/purchase", customer, map[string]any{
		"product_id": "sku-1",
		"quantity":   8,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on oversell, got %d", w.Code)
	}
	if env := decodeAPIResponse(t, w); env.Code != response.ErrInsufficientStock {
		t.Fatalf("expected code %d, got %d", response.ErrInsufficientStock, env.Code)
	}

	w = performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales/"+saleID+"/purchase", customer, map[string]any{
		"product_id": "missing",
		"quantity":   1,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", w.Code)
	}
}

func TestPurchase_OnScheduledSaleIsRejected(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	saleID := f.createSale(t, now.Add(time.Hour), now.Add(2*time.Hour), 5)

	w := performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales/"+saleID+"/purchase", f.adminToken, map[string]any{
		"product_id": "sku-1",
		"quantity":   1,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if env := decodeAPIResponse(t, w); env.Code != response.ErrSaleNotActive {
		t.Fatalf("expected code %d, got %d", response.ErrSaleNotActive, env.Code)
	}
}

func TestUpdateFlashSale_StatusChangesAndActiveSalesRejected(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	scheduled := f.createSale(t, now.Add(time.Hour), now.Add(2*time.Hour), 5)
	active := f.createSale(t, now.Add(-time.Hour), now.Add(time.Hour), 5)

	w := performJSONRequest(t, f.router, http.MethodPut, "/api/v1/flash-sales/"+scheduled, f.ownerToken, map[string]any{"status": "active"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for status change, got %d", w.Code)
	}

	w = performJSONRequest(t, f.router, http.MethodPut, "/api/v1/flash-sales/"+active, f.ownerToken, map[string]any{"name": "Renamed"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for active sale, got %d", w.Code)
	}

	w = performJSONRequest(t, f.router, http.MethodPut, "/api/v1/flash-sales/"+scheduled, f.ownerToken, map[string]any{"name": "Renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var sale model.FlashSale
	decodeAPIData(t, w, &sale)
	if sale.Name != "Renamed" {
		t.Fatalf("expected renamed sale, got %q", sale.Name)
	}

	w = performJSONRequest(t, f.router, http.MethodPut, "/api/v1/flash-sales/"+uuid.NewString(), f.ownerToken, map[string]any{"name": "x"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sale, got %d", w.Code)
	}
}

func TestCancelFlashSale(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	saleID := f.createSale(t, now.Add(time.Hour), now.Add(2*time.Hour), 5)

	w := performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales/"+saleID+"/cancel", f.ownerToken, map[string]any{"reason": "supplier delay"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var sale model.FlashSale
	decodeAPIData(t, w, &sale)
	if sale.Status != model.FlashSaleStatusCancelled || sale.Metadata[model.MetadataCancellationReason] != "supplier delay" {
		t.Fatalf("unexpected cancelled sale: %+v", sale)
	}

	w = performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales/"+saleID+"/cancel", f.ownerToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on second cancel, got %d", w.Code)
	}

	f.recorder.Wait()
	f.audit.mu.Lock()
	defer f.audit.mu.Unlock()
	found := false
	for _, entry := range f.audit.logs {
		if entry.Action == "flash_sale.cancel" && entry.Status == http.StatusOK && entry.ResourceID != nil && *entry.ResourceID == saleID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected audit entry for cancel, got %d entries", len(f.audit.logs))
	}
}

func TestProductLines_AddDuplicateAndRemove(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	saleID := f.createSale(t, now.Add(time.Hour), now.Add(2*time.Hour), 5)
	path := "/api/v1/flash-sales/" + saleID + "/products"

	w := performJSONRequest(t, f.router, http.MethodPost, path, f.ownerToken, map[string]any{
		"product_id":      "sku-2",
		"original_price":  50,
		"sale_price":      40,
		"stock_remaining": 3,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	w = performJSONRequest(t, f.router, http.MethodPost, path, f.ownerToken, map[string]any{
		"product_id":      "sku-2",
		"original_price":  50,
		"sale_price":      40,
		"stock_remaining": 3,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate, got %d", w.Code)
	}

	w = performJSONRequest(t, f.router, http.MethodDelete, path+"/sku-1", f.ownerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on remove, got %d", w.Code)
	}
	var sale model.FlashSale
	decodeAPIData(t, w, &sale)
	if len(sale.Products) != 1 || sale.Products[0].ProductID != "sku-2" {
		t.Fatalf("unexpected products after removal: %+v", sale.Products)
	}

	w = performJSONRequest(t, f.router, http.MethodDelete, path+"/sku-1", f.ownerToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second remove, got %d", w.Code)
	}
}

func TestProductLines_PunctuatedIDIsReachable(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	saleID := f.createSale(t, now.Add(-time.Hour), now.Add(time.Hour), 5)
	path := "/api/v1/flash-sales/" + saleID
	productID := "brand:AT.T_case-01"

	w := performJSONRequest(t, f.router, http.MethodPost, path+"/products", f.ownerToken, map[string]any{
		"product_id":      productID,
		"original_price":  50,
		"sale_price":      40,
		"stock_remaining": 3,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on add, got %d body=%s", w.Code, w.Body.String())
	}
	var sale model.FlashSale
	decodeAPIData(t, w, &sale)
	if idx, _ := sale.FindProduct(productID); idx < 0 {
		t.Fatalf("product id stored altered: %+v", sale.Products)
	}

	customer := f.token(t, "customer", "")
	w = performJSONRequest(t, f.router, http.MethodPost, path+"/purchase", customer, map[string]any{
		"product_id": productID,
		"quantity":   1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on purchase, got %d body=%s", w.Code, w.Body.String())
	}
	var result service.PurchaseResult
	decodeAPIData(t, w, &result)
	if result.ProductID != productID || result.RemainingStock != 2 {
		t.Fatalf("unexpected purchase result: %+v", result)
	}

	w = performJSONRequest(t, f.router, http.MethodDelete, path+"/products/"+productID, f.ownerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on remove, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestProductLines_RejectsMarkupInProductID(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	saleID := f.createSale(t, now.Add(-time.Hour), now.Add(time.Hour), 5)
	path := "/api/v1/flash-sales/" + saleID

	w := performJSONRequest(t, f.router, http.MethodPost, path+"/products", f.ownerToken, map[string]any{
		"product_id":      "AT&T-case",
		"original_price":  50,
		"sale_price":      40,
		"stock_remaining": 3,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on add, got %d", w.Code)
	}
	if env := decodeAPIResponse(t, w); env.Code != response.ErrValidation {
		t.Fatalf("expected code %d, got %d", response.ErrValidation, env.Code)
	}

	w = performJSONRequest(t, f.router, http.MethodPost, path+"/purchase", f.token(t, "customer", ""), map[string]any{
		"product_id": "AT&T-case",
		"quantity":   1,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on purchase, got %d", w.Code)
	}

	w = performJSONRequest(t, f.router, http.MethodDelete, path+"/products/AT%26T-case", f.ownerToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on remove, got %d", w.Code)
	}
}

func TestOutOfRangeInputIsRejected(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	saleID := f.createSale(t, now.Add(-time.Hour), now.Add(time.Hour), 5)
	path := "/api/v1/flash-sales/" + saleID

	cases := []struct {
		name   string
		method string
		target string
		token  string
		body   map[string]any
	}{
		{
			name:   "stock above limit",
			method: http.MethodPost,
			target: path + "/products",
			token:  f.ownerToken,
			body:   map[string]any{"product_id": "sku-big", "original_price": 10, "sale_price": 5, "stock_remaining": 3_000_000_000},
		},
		{
			name:   "price above limit",
			method: http.MethodPost,
			target: path + "/products",
			token:  f.ownerToken,
			body:   map[string]any{"product_id": "sku-pricey", "original_price": 1_000_000_000, "sale_price": 5, "stock_remaining": 1},
		},
		{
			name:   "quantity above int32",
			method: http.MethodPost,
			target: path + "/purchase",
			token:  f.ownerToken,
			body:   map[string]any{"product_id": "sku-1", "quantity": 3_000_000_000},
		},
		{
			name:   "customer id too long",
			method: http.MethodPost,
			target: path + "/purchase",
			token:  f.adminToken,
			body:   map[string]any{"product_id": "sku-1", "quantity": 1, "customer_id": strings.Repeat("c", 65)},
		},
	}

	for _, tc := range cases {
		w := performJSONRequest(t, f.router, tc.method, tc.target, tc.token, tc.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d body=%s", tc.name, w.Code, w.Body.String())
		}
	}

	w := performJSONRequest(t, f.router, http.MethodGet, "/api/v1/flash-sales?page=9223372036854775807", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for huge page, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestPurchase_CustomerOverrideLimitedToSaleOwner(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	saleID := f.createSale(t, now.Add(-time.Hour), now.Add(time.Hour), 10)
	path := "/api/v1/flash-sales/" + saleID

	otherOwnerID := uuid.NewString()
	otherOwner, err := jwtutil.GenerateAccessToken(
		jwtutil.NewClaims(otherOwnerID, service.RoleBoutiqueOwner, uuid.NewString(), time.Hour), f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	w := performJSONRequest(t, f.router, http.MethodPost, path+"/purchase", otherOwner, map[string]any{
		"product_id":  "sku-1",
		"quantity":    1,
		"customer_id": "walk-in-7",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	w = performJSONRequest(t, f.router, http.MethodPost, path+"/purchase", f.ownerToken, map[string]any{
		"product_id":  "sku-1",
		"quantity":    1,
		"customer_id": "walk-in-8",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	w = performJSONRequest(t, f.router, http.MethodGet, path+"/purchases", f.ownerToken, nil)
	var ledger []model.FlashSalePurchase
	decodeAPIData(t, w, &ledger)
	customers := map[string]bool{}
	for _, purchase := range ledger {
		customers[purchase.CustomerID] = true
	}
	if customers["walk-in-7"] || !customers[otherOwnerID] {
		t.Fatalf("foreign owner override should fall back to their own id: %+v", ledger)
	}
	if !customers["walk-in-8"] {
		t.Fatalf("sale owner override not recorded: %+v", ledger)
	}
}

func TestListAndActive_PublicEndpoints(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	f.createSale(t, now.Add(-time.Hour), now.Add(90*time.Minute), 5)
	f.createSale(t, now.Add(time.Hour), now.Add(2*time.Hour), 5)

	w := performJSONRequest(t, f.router, http.MethodGet, "/api/v1/flash-sales?boutique_id="+f.boutiqueID+"&limit=1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	env := decodeAPIResponse(t, w)
	if env.Pagination == nil || env.Pagination.Total != 2 || env.Pagination.PageSize != 1 {
		t.Fatalf("unexpected pagination: %+v", env.Pagination)
	}
	var listed struct {
		Sales []model.FlashSale `json:"sales"`
	}
	if err := json.Unmarshal(env.Data, &listed); err != nil || len(listed.Sales) != 1 {
		t.Fatalf("expected one sale on the page, got %v (%v)", listed.Sales, err)
	}

	w = performJSONRequest(t, f.router, http.MethodGet, "/api/v1/flash-sales/active", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var active struct {
		Sales []struct {
			ID             string `json:"id"`
			HoursRemaining int64  `json:"hours_remaining"`
			TimeRemaining  int64  `json:"time_remaining_ms"`
		} `json:"sales"`
	}
	decodeAPIData(t, w, &active)
	if len(active.Sales) != 1 || active.Sales[0].HoursRemaining != 1 || active.Sales[0].TimeRemaining <= 0 {
		t.Fatalf("unexpected active sales: %+v", active.Sales)
	}

	w = performJSONRequest(t, f.router, http.MethodGet, "/api/v1/flash-sales?status=bogus", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status filter, got %d", w.Code)
	}
}

func TestRecordView_RateLimited(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	svc := service.NewFlashSaleService(memory.NewFlashSaleRepository(), nil, nil, nil)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	router := gin.New()
	RegisterFlashSaleRoutes(router.Group("/api/v1"), FlashSaleRouteDeps{
		Service:     svc,
		PublicKey:   &key.PublicKey,
		ViewLimiter: middleware.NewRateLimiter(2, time.Minute),
	})

	now := time.Now().UTC()
	owner := &service.Actor{UserID: uuid.NewString(), Role: service.RoleAdmin}
	sale, err := svc.Create(context.Background(), owner, service.CreateFlashSaleRequest{
		BoutiqueID: uuid.NewString(),
		Name:       "Views",
		StartAt:    now.Add(-time.Minute),
		EndAt:      now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	path := "/api/v1/flash-sales/" + sale.ID.String() + "/view"
	for i := 0; i < 2; i++ {
		if w := performJSONRequest(t, router, http.MethodPost, path, "", nil); w.Code != http.StatusOK {
			t.Fatalf("view %d: expected 200, got %d", i, w.Code)
		}
	}
	if w := performJSONRequest(t, router, http.MethodPost, path, "", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestPerformanceAndSummary(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	saleID := f.createSale(t, now.Add(-time.Hour), now.Add(time.Hour), 10)
	customer := f.token(t, "customer", "")

	performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales/"+saleID+"/view", "", nil)
	performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales/"+saleID+"/view", "", nil)
	if w := performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales/"+saleID+"/purchase", customer, map[string]any{
		"product_id": "sku-1",
		"quantity":   2,
	}); w.Code != http.StatusOK {
		t.Fatalf("purchase: expected 200, got %d", w.Code)
	}

	w := performJSONRequest(t, f.router, http.MethodGet, "/api/v1/flash-sales/"+saleID+"/performance", f.ownerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var perf service.FlashSalePerformance
	decodeAPIData(t, w, &perf)
	if perf.TotalSold != 2 || perf.TotalStock != 8 || perf.ConversionRate.String() != "50" {
		t.Fatalf("unexpected performance: %+v", perf)
	}

	if w := performJSONRequest(t, f.router, http.MethodGet, "/api/v1/flash-sales/"+saleID+"/performance", customer, nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", w.Code)
	}

	w = performJSONRequest(t, f.router, http.MethodGet, "/api/v1/flash-sales/"+saleID+"/purchases", f.ownerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for ledger, got %d", w.Code)
	}
	if env := decodeAPIResponse(t, w); env.Pagination == nil || env.Pagination.Total != 1 {
		t.Fatalf("expected one ledger entry, got %+v", env.Pagination)
	}

	w = performJSONRequest(t, f.router, http.MethodGet, "/api/v1/flash-sales/summary", f.ownerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for summary, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestSweep_RequiresInternalToken(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	if w := performJSONRequest(t, f.router, http.MethodPost, "/api/v1/flash-sales/sweep", f.adminToken, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with user token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/flash-sales/sweep", nil)
	req.Header.Set(middleware.InternalTokenHeader, testInternalToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var result service.SweepResult
	decodeAPIData(t, w, &result)
	if result.Activated != 0 || result.Ended != 0 {
		t.Fatalf("expected empty sweep, got %+v", result)
	}
}
