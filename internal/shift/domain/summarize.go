package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/smallbiznis/ordersync/internal/pricing"
)

// CashMethod is the payment method counted toward the drawer.
const CashMethod = "cash"

// Summarize folds orders into the shift's aggregates. Only orders of this
// shift that the remote store has acknowledged without pending local edits
// are counted; cancelled and void orders never are. The fold builds fresh
// maps on every call.
func Summarize(orders []orderdomain.Order, shift Shift) Summary {
	summary := Summary{
		TotalsByType:     make(map[orderdomain.OrderType]decimal.Decimal),
		PaymentsByMethod: make(map[string]decimal.Decimal),
		CountsByType:     make(map[orderdomain.OrderType]int),
		TotalSales:       decimal.Zero,
	}

	seen := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		if o.ShiftID != shift.ID || !o.IsPersisted() || o.IsDirty() || o.Status.Excluded() {
			continue
		}
		if _, dup := seen[o.ID]; dup {
			continue
		}
		seen[o.ID] = struct{}{}

		due := pricing.Round(o.Totals.Due)
		summary.TotalsByType[o.Type] = summary.TotalsByType[o.Type].Add(due)
		summary.CountsByType[o.Type]++
		summary.OrdersCount++

		for _, p := range o.Payments {
			if !p.Amount.IsPositive() {
				continue
			}
			method := strings.ToLower(strings.TrimSpace(p.MethodID))
			if method == "" {
				method = "unknown"
			}
			summary.PaymentsByMethod[method] = summary.PaymentsByMethod[method].Add(pricing.Round(p.Amount))
		}
	}

	for _, total := range summary.TotalsByType {
		summary.TotalSales = summary.TotalSales.Add(total)
	}
	summary.TotalSales = pricing.Round(summary.TotalSales)
	summary.ExpectedCash = pricing.Round(shift.OpeningFloat.Add(summary.PaymentsByMethod[CashMethod]))
	if !shift.IsOpen() {
		summary.CashVariance = pricing.Round(shift.ClosingCash.Sub(summary.ExpectedCash))
	}
	return summary
}
