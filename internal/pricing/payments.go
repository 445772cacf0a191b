package pricing

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ordersync/internal/order/domain"
)

// PaymentSummary is the settlement position of an order's payments.
type PaymentSummary struct {
	Due       decimal.Decimal
	Paid      decimal.Decimal
	Remaining decimal.Decimal
	Change    decimal.Decimal
	State     domain.PaymentState
}

// SummarizePayments folds positive payment amounts against the amount due.
func SummarizePayments(totals domain.Totals, entries []domain.Payment) PaymentSummary {
	paid := decimal.Zero
	for _, p := range entries {
		if p.Amount.IsPositive() {
			paid = paid.Add(p.Amount)
		}
	}
	paid = Round(paid)
	due := Round(totals.Due)

	state := domain.PaymentUnpaid
	switch {
	case due.IsPositive() && paid.GreaterThanOrEqual(due):
		state = domain.PaymentPaid
	case paid.IsPositive() && paid.LessThan(due):
		state = domain.PaymentPartial
	}

	return PaymentSummary{
		Due:       due,
		Paid:      paid,
		Remaining: decimal.Max(decimal.Zero, due.Sub(paid)),
		Change:    decimal.Max(decimal.Zero, paid.Sub(due)),
		State:     state,
	}
}

// PaymentCeiling is the most that may be collected against due: due rounded
// up to the next whole currency unit, leaving room for change.
func PaymentCeiling(due decimal.Decimal) decimal.Decimal {
	if !due.IsPositive() {
		return decimal.Zero
	}
	return Round(due).Ceil()
}

// CanAcceptPayment checks amount against the ceiling for the payments
// already captured.
func CanAcceptPayment(totals domain.Totals, existing []domain.Payment, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidPaymentAmount
	}
	paid := SummarizePayments(totals, existing).Paid
	if Round(paid.Add(amount)).GreaterThan(PaymentCeiling(totals.Due)) {
		return domain.ErrOverpayment
	}
	return nil
}
