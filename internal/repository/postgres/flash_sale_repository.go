package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"mallify-hub/internal/model"
	"mallify-hub/internal/repository"
)

type flashSaleRepository struct {
	pool *pgxpool.Pool
}

func NewFlashSaleRepository(pool *pgxpool.Pool) repository.FlashSaleRepository {
	return &flashSaleRepository{pool: pool}
}

var _ repository.FlashSaleRepository = (*flashSaleRepository)(nil)

const flashSaleColumns = `
	id,
	boutique_id,
	name,
	description,
	type,
	status,
	start_at,
	end_at,
	rules,
	is_public,
	notify_customers,
	featured_on_homepage,
	views,
	participants,
	revenue,
	conversion_rate,
	metadata,
	created_by,
	created_at,
	updated_at
`

const flashSaleProductColumns = `
	sale_id,
	product_id,
	original_price,
	sale_price,
	discount_percent,
	stock_remaining,
	units_sold
`

const purchaseColumns = `
	id,
	sale_id,
	product_id,
	customer_id,
	quantity,
	unit_price,
	amount,
	created_at
`

// conversionRateExpr recomputes the stored conversion rate from the counters in the same row.
const conversionRateExpr = `CASE WHEN views > 0 THEN ROUND(participants * 100.0 / views, 2) ELSE 0 END`

const insertProductQuery = `
	INSERT INTO flash_sale_products (
		sale_id, product_id, position, original_price, sale_price,
		discount_percent, stock_remaining, units_sold
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func (r *flashSaleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.FlashSale, error) {
	query := `SELECT ` + flashSaleColumns + ` FROM flash_sales WHERE id = $1`
	sale, err := scanFlashSale(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.attachProducts(ctx, r.pool, []*model.FlashSale{sale}); err != nil {
		return nil, err
	}
	return sale, nil
}

func (r *flashSaleRepository) Create(ctx context.Context, sale *model.FlashSale) error {
	if sale.ID == uuid.Nil {
		sale.ID = uuid.New()
	}
	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	if sale.UpdatedAt.IsZero() {
		sale.UpdatedAt = sale.CreatedAt
	}

	rules, err := json.Marshal(sale.Rules)
	if err != nil {
		return err
	}
	metadata, err := encodeJSONMap(sale.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(
		ctx,
		`INSERT INTO flash_sales (
			id, boutique_id, name, description, type,
			status, start_at, end_at, rules, is_public,
			notify_customers, featured_on_homepage, views, participants, revenue,
			conversion_rate, metadata, created_by, created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20
		)`,
		sale.ID,
		sale.BoutiqueID,
		sale.Name,
		sale.Description,
		sale.Type,
		sale.Status,
		sale.StartAt,
		sale.EndAt,
		rules,
		sale.Visibility.IsPublic,
		sale.Visibility.NotifyCustomers,
		sale.Visibility.FeaturedOnHomepage,
		sale.Counters.Views,
		sale.Counters.Participants,
		sale.Counters.Revenue,
		sale.Counters.ConversionRate,
		metadata,
		sale.CreatedBy,
		sale.CreatedAt,
		sale.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if len(sale.Products) > 0 {
		batch := &pgx.Batch{}
		for i, product := range sale.Products {
			batch.Queue(
				insertProductQuery,
				sale.ID,
				product.ProductID,
				i,
				product.OriginalPrice,
				product.SalePrice,
				product.DiscountPercent,
				product.StockRemaining,
				product.UnitsSold,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for range sale.Products {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return err
			}
		}
		if err := results.Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *flashSaleRepository) Update(ctx context.Context, sale *model.FlashSale, expected model.FlashSaleStatus) error {
	rules, err := json.Marshal(sale.Rules)
	if err != nil {
		return err
	}
	metadata, err := encodeJSONMap(sale.Metadata)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE flash_sales
		    SET name = $3,
		        description = $4,
		        type = $5,
		        start_at = $6,
		        end_at = $7,
		        rules = $8,
		        is_public = $9,
		        notify_customers = $10,
		        featured_on_homepage = $11,
		        metadata = $12,
		        updated_at = $13
		  WHERE id = $1
		    AND status = $2`,
		sale.ID,
		expected,
		sale.Name,
		sale.Description,
		sale.Type,
		sale.StartAt,
		sale.EndAt,
		rules,
		sale.Visibility.IsPublic,
		sale.Visibility.NotifyCustomers,
		sale.Visibility.FeaturedOnHomepage,
		metadata,
		sale.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := ensureAffected(tag); err != nil {
		return r.explainMiss(ctx, sale.ID)
	}
	return nil
}

func (r *flashSaleRepository) Cancel(
	ctx context.Context,
	id uuid.UUID,
	metadata map[string]interface{},
	at time.Time,
) (*model.FlashSale, error) {
	patch, err := encodeJSONMap(metadata)
	if err != nil {
		return nil, err
	}
	if patch == nil {
		patch = []byte("{}")
	}

	query := `
		UPDATE flash_sales
		   SET status = 'cancelled',
		       metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb,
		       updated_at = $3
		 WHERE id = $1
		   AND status IN ('scheduled', 'active')
		RETURNING ` + flashSaleColumns

	sale, err := scanFlashSale(r.pool.QueryRow(ctx, query, id, patch, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.explainMiss(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if err := r.attachProducts(ctx, r.pool, []*model.FlashSale{sale}); err != nil {
		return nil, err
	}
	return sale, nil
}

func (r *flashSaleRepository) AddProduct(
	ctx context.Context,
	id uuid.UUID,
	product model.FlashSaleProduct,
	at time.Time,
) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := lockMutableSale(ctx, tx, id); err != nil {
		return err
	}

	var position int
	if err := tx.QueryRow(
		ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM flash_sale_products WHERE sale_id = $1`,
		id,
	).Scan(&position); err != nil {
		return err
	}

	tag, err := tx.Exec(
		ctx,
		insertProductQuery+` ON CONFLICT (sale_id, product_id) DO NOTHING`,
		id,
		product.ProductID,
		position,
		product.OriginalPrice,
		product.SalePrice,
		product.DiscountPercent,
		product.StockRemaining,
		product.UnitsSold,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicateProduct
	}

	if _, err := tx.Exec(ctx, `UPDATE flash_sales SET updated_at = $2 WHERE id = $1`, id, at); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *flashSaleRepository) RemoveProduct(ctx context.Context, id uuid.UUID, productID string, at time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := lockMutableSale(ctx, tx, id); err != nil {
		return err
	}

	tag, err := tx.Exec(
		ctx,
		`DELETE FROM flash_sale_products WHERE sale_id = $1 AND product_id = $2`,
		id,
		productID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrProductNotFound
	}

	if _, err := tx.Exec(ctx, `UPDATE flash_sales SET updated_at = $2 WHERE id = $1`, id, at); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ApplyPurchase holds the sale row lock for the whole purchase so the quota
// check and the stock decrement see a consistent view.
func (r *flashSaleRepository) ApplyPurchase(
	ctx context.Context,
	params repository.PurchaseParams,
) (*repository.PurchaseOutcome, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		status     model.FlashSaleStatus
		endAt      time.Time
		boutiqueID uuid.UUID
		rulesRaw   []byte
	)
	err = tx.QueryRow(
		ctx,
		`SELECT status, end_at, boutique_id, rules
		   FROM flash_sales
		  WHERE id = $1
		  FOR UPDATE`,
		params.SaleID,
	).Scan(&status, &endAt, &boutiqueID, &rulesRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if status != model.FlashSaleStatusActive || !params.At.Before(endAt) {
		return nil, repository.ErrSaleNotActive
	}

	var rules model.EligibilityRules
	if len(rulesRaw) > 0 {
		if err := json.Unmarshal(rulesRaw, &rules); err != nil {
			return nil, fmt.Errorf("decode flash sale rules: %w", err)
		}
	}

	if rules.MaxQuantityPerCustomer > 0 {
		var already int
		if params.CustomerID != "" {
			if err := tx.QueryRow(
				ctx,
				`SELECT COALESCE(SUM(quantity), 0)
				   FROM flash_sale_purchases
				  WHERE sale_id = $1
				    AND customer_id = $2`,
				params.SaleID,
				params.CustomerID,
			).Scan(&already); err != nil {
				return nil, err
			}
		}
		if already+params.Quantity > rules.MaxQuantityPerCustomer {
			return nil, repository.ErrQuotaExceeded
		}
	}

	outcome := &repository.PurchaseOutcome{BoutiqueID: boutiqueID}
	var unitPrice decimal.Decimal
	err = tx.QueryRow(
		ctx,
		`UPDATE flash_sale_products
		    SET stock_remaining = stock_remaining - $3,
		        units_sold = units_sold + $3
		  WHERE sale_id = $1
		    AND product_id = $2
		    AND stock_remaining >= $3
		RETURNING stock_remaining, units_sold, sale_price`,
		params.SaleID,
		params.ProductID,
		params.Quantity,
	).Scan(&outcome.StockRemaining, &outcome.UnitsSold, &unitPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(
			ctx,
			`SELECT EXISTS (SELECT 1 FROM flash_sale_products WHERE sale_id = $1 AND product_id = $2)`,
			params.SaleID,
			params.ProductID,
		).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, repository.ErrProductNotFound
		}
		return nil, repository.ErrInsufficientStock
	}
	if err != nil {
		return nil, err
	}

	amount := unitPrice.Mul(decimal.NewFromInt(int64(params.Quantity)))
	err = tx.QueryRow(
		ctx,
		`UPDATE flash_sales
		    SET participants = participants + 1,
		        revenue = revenue + $2,
		        conversion_rate = `+strings.ReplaceAll(conversionRateExpr, "participants", "(participants + 1)")+`,
		        updated_at = $3
		  WHERE id = $1
		RETURNING participants, revenue`,
		params.SaleID,
		amount,
		params.At,
	).Scan(&outcome.Participants, &outcome.Revenue)
	if err != nil {
		return nil, err
	}

	outcome.Purchase = model.FlashSalePurchase{
		ID:         uuid.New(),
		SaleID:     params.SaleID,
		ProductID:  params.ProductID,
		CustomerID: params.CustomerID,
		Quantity:   params.Quantity,
		UnitPrice:  unitPrice,
		Amount:     amount,
		CreatedAt:  params.At,
	}
	if _, err := tx.Exec(
		ctx,
		`INSERT INTO flash_sale_purchases (`+purchaseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		outcome.Purchase.ID,
		outcome.Purchase.SaleID,
		outcome.Purchase.ProductID,
		outcome.Purchase.CustomerID,
		outcome.Purchase.Quantity,
		outcome.Purchase.UnitPrice,
		outcome.Purchase.Amount,
		outcome.Purchase.CreatedAt,
	); err != nil {
		return nil, err
	}

	var stockLeft int64
	if err := tx.QueryRow(
		ctx,
		`SELECT COALESCE(SUM(stock_remaining), 0) FROM flash_sale_products WHERE sale_id = $1`,
		params.SaleID,
	).Scan(&stockLeft); err != nil {
		return nil, err
	}
	outcome.SoldOut = stockLeft == 0

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (r *flashSaleRepository) IncrementViews(ctx context.Context, id uuid.UUID) (int64, error) {
	var views int64
	err := r.pool.QueryRow(
		ctx,
		`UPDATE flash_sales
		    SET views = views + 1,
		        conversion_rate = `+strings.ReplaceAll(conversionRateExpr, "views", "(views + 1)")+`
		  WHERE id = $1
		RETURNING views`,
		id,
	).Scan(&views)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return views, err
}

func (r *flashSaleRepository) List(ctx context.Context, filter repository.FlashSaleListFilter) ([]*model.FlashSale, error) {
	limit, offset := normalizePagination(filter.Pagination)
	where, args := buildFlashSaleFilter(filter)

	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT %s FROM flash_sales%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		flashSaleColumns,
		where,
		len(args)-1,
		len(args),
	)

	sales, err := r.querySales(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := r.attachProducts(ctx, r.pool, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *flashSaleRepository) Count(ctx context.Context, filter repository.FlashSaleListFilter) (int64, error) {
	where, args := buildFlashSaleFilter(filter)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM flash_sales`+where, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *flashSaleRepository) ListActive(ctx context.Context, now time.Time) ([]*model.FlashSale, error) {
	query := `SELECT ` + flashSaleColumns + `
		FROM flash_sales
		WHERE status = 'active'
		  AND start_at <= $1
		  AND end_at >= $1
		ORDER BY end_at ASC`

	sales, err := r.querySales(ctx, query, now)
	if err != nil {
		return nil, err
	}
	if err := r.attachProducts(ctx, r.pool, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *flashSaleRepository) ListPurchases(
	ctx context.Context,
	saleID uuid.UUID,
	page repository.Pagination,
) ([]*model.FlashSalePurchase, int64, error) {
	limit, offset := normalizePagination(page)

	var total int64
	if err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM flash_sale_purchases WHERE sale_id = $1`,
		saleID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+purchaseColumns+`
		   FROM flash_sale_purchases
		  WHERE sale_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		saleID,
		limit,
		offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]*model.FlashSalePurchase, 0, limit)
	for rows.Next() {
		item := &model.FlashSalePurchase{}
		if err := rows.Scan(
			&item.ID,
			&item.SaleID,
			&item.ProductID,
			&item.CustomerID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Amount,
			&item.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (r *flashSaleRepository) ActivateDue(ctx context.Context, now time.Time) ([]*model.FlashSale, error) {
	query := `
		UPDATE flash_sales
		   SET status = 'active',
		       updated_at = $1
		 WHERE status = 'scheduled'
		   AND start_at <= $1
		RETURNING ` + flashSaleColumns
	return r.querySales(ctx, query, now)
}

func (r *flashSaleRepository) EndDue(ctx context.Context, now time.Time) ([]*model.FlashSale, error) {
	query := `
		UPDATE flash_sales
		   SET status = 'ended',
		       updated_at = $1
		 WHERE status = 'active'
		   AND end_at <= $1
		RETURNING ` + flashSaleColumns
	return r.querySales(ctx, query, now)
}

func (r *flashSaleRepository) Summary(ctx context.Context, boutiqueID *uuid.UUID) (*repository.BoutiqueSummary, error) {
	args := make([]any, 0, 1)
	where := ""
	if boutiqueID != nil {
		args = append(args, *boutiqueID)
		where = " WHERE boutique_id = $1"
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(revenue), 0), COALESCE(SUM(participants), 0)
		   FROM flash_sales`+where+`
		  GROUP BY status
		  ORDER BY status`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &repository.BoutiqueSummary{
		ByStatus: make([]repository.StatusCount, 0, 4),
		Revenue:  decimal.Zero,
	}
	for rows.Next() {
		var (
			item         repository.StatusCount
			revenue      decimal.Decimal
			participants int64
		)
		if err := rows.Scan(&item.Status, &item.Total, &revenue, &participants); err != nil {
			return nil, err
		}
		summary.ByStatus = append(summary.ByStatus, item)
		summary.Revenue = summary.Revenue.Add(revenue)
		summary.Participants += participants
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	unitsWhere := ""
	if boutiqueID != nil {
		unitsWhere = " WHERE s.boutique_id = $1"
	}
	if err := r.pool.QueryRow(
		ctx,
		`SELECT COALESCE(SUM(p.units_sold), 0)
		   FROM flash_sale_products p
		   JOIN flash_sales s ON s.id = p.sale_id`+unitsWhere,
		args...,
	).Scan(&summary.UnitsSold); err != nil {
		return nil, err
	}

	return summary, nil
}

func (r *flashSaleRepository) CountByStatus(ctx context.Context) ([]repository.StatusCount, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM flash_sales GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]repository.StatusCount, 0, 4)
	for rows.Next() {
		var item repository.StatusCount
		if err := rows.Scan(&item.Status, &item.Total); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// explainMiss tells a missing sale apart from a status guard that did not match.
func (r *flashSaleRepository) explainMiss(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM flash_sales WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return repository.ErrStatusConflict
}

func (r *flashSaleRepository) querySales(ctx context.Context, query string, args ...any) ([]*model.FlashSale, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]*model.FlashSale, 0)
	for rows.Next() {
		sale, err := scanFlashSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *flashSaleRepository) attachProducts(ctx context.Context, q queryer, sales []*model.FlashSale) error {
	if len(sales) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(sales))
	byID := make(map[uuid.UUID]*model.FlashSale, len(sales))
	for _, sale := range sales {
		sale.Products = make([]model.FlashSaleProduct, 0)
		ids = append(ids, sale.ID)
		byID[sale.ID] = sale
	}

	rows, err := q.Query(
		ctx,
		`SELECT `+flashSaleProductColumns+`
		   FROM flash_sale_products
		  WHERE sale_id = ANY($1)
		  ORDER BY sale_id, position`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			saleID  uuid.UUID
			product model.FlashSaleProduct
		)
		if err := rows.Scan(
			&saleID,
			&product.ProductID,
			&product.OriginalPrice,
			&product.SalePrice,
			&product.DiscountPercent,
			&product.StockRemaining,
			&product.UnitsSold,
		); err != nil {
			return err
		}
		if sale, ok := byID[saleID]; ok {
			sale.Products = append(sale.Products, product)
		}
	}
	return rows.Err()
}

func lockMutableSale(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var status model.FlashSaleStatus
	err := tx.QueryRow(ctx, `SELECT status FROM flash_sales WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status.Terminal() {
		return repository.ErrStatusConflict
	}
	return nil
}

func buildFlashSaleFilter(filter repository.FlashSaleListFilter) (string, []any) {
	args := make([]any, 0, 6)
	conditions := make([]string, 0, 4)

	if filter.BoutiqueID != nil {
		args = append(args, *filter.BoutiqueID)
		conditions = append(conditions, fmt.Sprintf("boutique_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.PublicOnly {
		conditions = append(conditions, "is_public = TRUE")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanFlashSale(src scanTarget) (*model.FlashSale, error) {
	sale := &model.FlashSale{}
	var (
		rulesRaw    []byte
		metadataRaw []byte
	)

	err := src.Scan(
		&sale.ID,
		&sale.BoutiqueID,
		&sale.Name,
		&sale.Description,
		&sale.Type,
		&sale.Status,
		&sale.StartAt,
		&sale.EndAt,
		&rulesRaw,
		&sale.Visibility.IsPublic,
		&sale.Visibility.NotifyCustomers,
		&sale.Visibility.FeaturedOnHomepage,
		&sale.Counters.Views,
		&sale.Counters.Participants,
		&sale.Counters.Revenue,
		&sale.Counters.ConversionRate,
		&metadataRaw,
		&sale.CreatedBy,
		&sale.CreatedAt,
		&sale.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(rulesRaw) > 0 {
		if err := json.Unmarshal(rulesRaw, &sale.Rules); err != nil {
			return nil, fmt.Errorf("decode flash sale rules: %w", err)
		}
	}
	sale.Metadata, err = decodeJSONMap(metadataRaw)
	if err != nil {
		return nil, fmt.Errorf("decode flash sale metadata: %w", err)
	}

	return sale, nil
}
