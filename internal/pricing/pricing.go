// Package pricing computes line totals, order totals and payment state.
// Every money value passes through Round so recomputation is idempotent.
package pricing

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/order/domain"
)

const (
	moneyPlaces    = 2
	quantityPlaces = 3
)

var hundred = decimal.NewFromInt(100)

// Options are the order-level rates. Zero values disable each charge.
type Options struct {
	DeliveryFee decimal.Decimal
	ServiceRate decimal.Decimal
	VATRate     decimal.Decimal
}

// OptionsFromConfig parses the configured rates. Unparseable values count as zero.
func OptionsFromConfig(cfg config.PricingTuning) Options {
	return Options{
		DeliveryFee: parseOrZero(cfg.DeliveryFee),
		ServiceRate: parseOrZero(cfg.ServiceRate),
		VATRate:     parseOrZero(cfg.VATRate),
	}
}

func parseOrZero(raw string) decimal.Decimal {
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Round is the single money rounding primitive: half away from zero, to the cent.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(moneyPlaces)
}

// RoundQuantity keeps at most three decimal places and never goes below zero.
func RoundQuantity(q decimal.Decimal) decimal.Decimal {
	if q.IsNegative() {
		return decimal.Zero
	}
	return q.Round(quantityPlaces)
}

// PriceLine recomputes the derived fields of a line from its base price,
// modifiers, quantity and discount.
func PriceLine(line domain.Line) domain.Line {
	out := line.Clone()
	out.Quantity = RoundQuantity(line.Quantity)

	unit := line.BasePrice
	for _, m := range line.Modifiers {
		unit = unit.Add(m.Delta)
	}
	out.UnitPrice = Round(unit)
	out.Gross = Round(out.UnitPrice.Mul(out.Quantity))
	out.DiscountAmount = discountAmount(line.Discount, out.Gross)
	out.Total = decimal.Max(decimal.Zero, out.Gross.Sub(out.DiscountAmount))
	return out
}

func discountAmount(d *domain.Discount, base decimal.Decimal) decimal.Decimal {
	if d == nil || !d.Value.IsPositive() || !base.IsPositive() {
		return decimal.Zero
	}
	switch d.Type {
	case domain.DiscountPercent:
		rate := decimal.Min(d.Value, hundred)
		return Round(base.Mul(rate).Div(hundred))
	case domain.DiscountAmount:
		return Round(decimal.Min(d.Value, base))
	default:
		return decimal.Zero
	}
}

// PriceOrder sums re-priced lines and applies the order discount against the
// net subtotal.
func PriceOrder(lines []domain.Line, orderType domain.OrderType, discount *domain.Discount, opts Options) domain.Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(PriceLine(line).Total)
	}
	subtotal = Round(subtotal)

	disc := discountAmount(discount, subtotal)
	base := subtotal.Sub(disc)
	service := Round(base.Mul(opts.ServiceRate))
	vat := Round(base.Add(service).Mul(opts.VATRate))

	fee := decimal.Zero
	if orderType == domain.OrderTypeDelivery {
		fee = Round(opts.DeliveryFee)
	}

	return domain.Totals{
		Subtotal:    subtotal,
		Service:     service,
		VAT:         vat,
		Discount:    disc,
		DeliveryFee: fee,
		Due:         Round(base.Add(service).Add(vat).Add(fee)),
	}
}

// Reprice returns a copy of o with every line, the totals and the payment
// state recomputed.
func Reprice(o domain.Order, opts Options) domain.Order {
	out := o.Clone()
	for i := range out.Lines {
		out.Lines[i] = PriceLine(out.Lines[i])
	}
	out.Totals = PriceOrder(out.Lines, out.Type, out.Discount, opts)
	out.PaymentState = SummarizePayments(out.Totals, out.Payments).State
	return out
}
