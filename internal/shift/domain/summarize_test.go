package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/stretchr/testify/assert"
)

func money(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func savedOrder(id, shiftID string, typ orderdomain.OrderType, due string, payments ...orderdomain.Payment) orderdomain.Order {
	return orderdomain.Order{
		ID:       id,
		ShiftID:  shiftID,
		Type:     typ,
		Status:   orderdomain.StatusOpen,
		Totals:   orderdomain.Totals{Due: money(due)},
		Payments: payments,
		State:    orderdomain.Saved{Version: 1},
	}
}

func cash(amount string) orderdomain.Payment {
	return orderdomain.Payment{MethodID: "cash", Amount: money(amount)}
}

func TestSummarizeCountsOnlyCleanOrdersOfShift(t *testing.T) {
	shift := Shift{ID: "s1", Status: StatusOpen, OpeningFloat: money("100")}

	dirty := savedOrder("o4", "s1", orderdomain.OrderTypeDineIn, "50.00")
	dirty.State = orderdomain.Saved{Version: 2, Dirty: true}
	draft := savedOrder("o5", "s1", orderdomain.OrderTypeDineIn, "50.00")
	draft.State = orderdomain.Draft{}
	void := savedOrder("o6", "s1", orderdomain.OrderTypeDineIn, "50.00")
	void.Status = orderdomain.StatusVoid

	orders := []orderdomain.Order{
		savedOrder("o1", "s1", orderdomain.OrderTypeDineIn, "20.00", cash("20.00")),
		savedOrder("o2", "s1", orderdomain.OrderTypeTakeaway, "18.00", orderdomain.Payment{MethodID: "QRIS", Amount: money("18.00")}),
		savedOrder("o3", "s2", orderdomain.OrderTypeDineIn, "99.00"),
		dirty, draft, void,
	}

	summary := Summarize(orders, shift)

	assert.Equal(t, 2, summary.OrdersCount)
	assert.Equal(t, "38.00", summary.TotalSales.StringFixed(2))
	assert.Equal(t, "20.00", summary.TotalsByType[orderdomain.OrderTypeDineIn].StringFixed(2))
	assert.Equal(t, "18.00", summary.TotalsByType[orderdomain.OrderTypeTakeaway].StringFixed(2))
	assert.Equal(t, 1, summary.CountsByType[orderdomain.OrderTypeDineIn])
	assert.Equal(t, "18.00", summary.PaymentsByMethod["qris"].StringFixed(2))
	assert.Equal(t, "120.00", summary.ExpectedCash.StringFixed(2))
	assert.True(t, summary.CashVariance.IsZero())
}

func TestSummarizeConservation(t *testing.T) {
	shift := Shift{ID: "s1", Status: StatusOpen}
	orders := []orderdomain.Order{
		savedOrder("o1", "s1", orderdomain.OrderTypeDineIn, "10.10"),
		savedOrder("o2", "s1", orderdomain.OrderTypeDelivery, "33.33"),
		savedOrder("o3", "s1", orderdomain.OrderTypeTakeaway, "0.57"),
		savedOrder("o4", "s1", orderdomain.OrderTypeDelivery, "12.00"),
	}

	summary := Summarize(orders, shift)

	sum := decimal.Zero
	for _, v := range summary.TotalsByType {
		sum = sum.Add(v)
	}
	assert.True(t, sum.Equal(summary.TotalSales), "sum %s total %s", sum, summary.TotalSales)
	assert.Equal(t, 4, summary.OrdersCount)
}

func TestSummarizeIsIdempotent(t *testing.T) {
	shift := Shift{ID: "s1", Status: StatusOpen}
	orders := []orderdomain.Order{
		savedOrder("o1", "s1", orderdomain.OrderTypeDineIn, "10.00", cash("10.00")),
		savedOrder("o1", "s1", orderdomain.OrderTypeDineIn, "10.00", cash("10.00")),
	}

	first := Summarize(orders, shift)
	second := Summarize(orders, shift)

	assert.Equal(t, 1, first.OrdersCount)
	assert.True(t, first.TotalSales.Equal(second.TotalSales))
	assert.True(t, first.PaymentsByMethod["cash"].Equal(second.PaymentsByMethod["cash"]))
}

func TestClosedShiftCashVariance(t *testing.T) {
	shift := Shift{ID: "s1", Status: StatusClosed, OpeningFloat: money("50"), ClosingCash: money("65")}
	orders := []orderdomain.Order{savedOrder("o1", "s1", orderdomain.OrderTypeDineIn, "20.00", cash("20.00"))}

	summary := Summarize(orders, shift)

	assert.Equal(t, "70.00", summary.ExpectedCash.StringFixed(2))
	assert.Equal(t, "-5.00", summary.CashVariance.StringFixed(2))
}
