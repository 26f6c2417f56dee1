package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"mallify-hub/internal/model"
)

const topProductsLimit = 5

var hundred = decimal.NewFromInt(100)

type ProductPerformance struct {
	ProductID      string          `json:"product_id"`
	UnitsSold      int             `json:"units_sold"`
	StockRemaining int             `json:"stock_remaining"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	Revenue        decimal.Decimal `json:"revenue"`
}

type FlashSalePerformance struct {
	SaleID          string               `json:"sale_id"`
	Status          string               `json:"status"`
	TotalProducts   int                  `json:"total_products"`
	TotalStock      int64                `json:"total_stock"`
	TotalSold       int64                `json:"total_sold"`
	SellThroughRate decimal.Decimal      `json:"sell_through_rate"`
	TopProducts     []ProductPerformance `json:"top_products"`
	Views           int64                `json:"views"`
	Participants    int64                `json:"participants"`
	Revenue         decimal.Decimal      `json:"revenue"`
	ConversionRate  decimal.Decimal      `json:"conversion_rate"`
}

// ComputePerformance derives the readout from the stored counters and product lines.
func ComputePerformance(sale *model.FlashSale) FlashSalePerformance {
	out := FlashSalePerformance{
		TopProducts:     make([]ProductPerformance, 0, topProductsLimit),
		SellThroughRate: decimal.Zero,
		Revenue:         decimal.Zero,
		ConversionRate:  decimal.Zero,
	}
	if sale == nil {
		return out
	}

	out.SaleID = sale.ID.String()
	out.Status = string(sale.Status)
	out.TotalProducts = len(sale.Products)
	out.Views = sale.Counters.Views
	out.Participants = sale.Counters.Participants
	out.Revenue = sale.Counters.Revenue.Round(2)

	lines := make([]ProductPerformance, 0, len(sale.Products))
	for _, product := range sale.Products {
		out.TotalStock += int64(product.StockRemaining)
		out.TotalSold += int64(product.UnitsSold)
		lines = append(lines, ProductPerformance{
			ProductID:      product.ProductID,
			UnitsSold:      product.UnitsSold,
			StockRemaining: product.StockRemaining,
			SalePrice:      product.SalePrice,
			Revenue:        product.SalePrice.Mul(decimal.NewFromInt(int64(product.UnitsSold))).Round(2),
		})
	}

	out.SellThroughRate = percentage(out.TotalSold, out.TotalStock+out.TotalSold)
	out.ConversionRate = percentage(out.Participants, out.Views)

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].UnitsSold > lines[j].UnitsSold
	})
	if len(lines) > topProductsLimit {
		lines = lines[:topProductsLimit]
	}
	out.TopProducts = append(out.TopProducts, lines...)

	return out
}

// DiscountPercent returns the percentage drop from original to sale price.
func DiscountPercent(original, sale decimal.Decimal) decimal.Decimal {
	if original.IsZero() {
		return decimal.Zero
	}
	return original.Sub(sale).Div(original).Mul(hundred).Round(2)
}

func percentage(part, whole int64) decimal.Decimal {
	if whole <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Mul(hundred).Div(decimal.NewFromInt(whole)).Round(2)
}
