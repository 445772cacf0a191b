package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/ordersync/internal/order/domain"
)

var (
	ErrShiftAlreadyOpen = errors.New("shift_already_open")
	ErrShiftClosed      = errors.New("shift_closed")
	ErrShiftNotFound    = errors.New("shift_not_found")
	ErrInvalidFloat     = errors.New("invalid_opening_float")
	ErrInvalidCashier   = errors.New("invalid_cashier")
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Shift is a cash-register session. It references orders by id only.
type Shift struct {
	ID           string          `json:"id"`
	PosID        string          `json:"pos_id"`
	CashierID    string          `json:"cashier_id"`
	Status       Status          `json:"status"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
	ClosingCash  decimal.Decimal `json:"closing_cash"`
	OrderIDs     []string        `json:"order_ids,omitempty"`
	Summary      *Summary        `json:"summary,omitempty"`
}

func (s Shift) IsOpen() bool { return s.Status == StatusOpen }

func (s Shift) Clone() Shift {
	out := s
	if s.ClosedAt != nil {
		at := *s.ClosedAt
		out.ClosedAt = &at
	}
	if s.OrderIDs != nil {
		out.OrderIDs = append([]string(nil), s.OrderIDs...)
	}
	if s.Summary != nil {
		summary := s.Summary.Clone()
		out.Summary = &summary
	}
	return out
}

// Summary is the fold of a shift's saved orders.
type Summary struct {
	TotalsByType     map[orderdomain.OrderType]decimal.Decimal `json:"totals_by_type"`
	PaymentsByMethod map[string]decimal.Decimal                `json:"payments_by_method"`
	CountsByType     map[orderdomain.OrderType]int             `json:"counts_by_type"`
	TotalSales       decimal.Decimal                           `json:"total_sales"`
	OrdersCount      int                                       `json:"orders_count"`
	ExpectedCash     decimal.Decimal                           `json:"expected_cash"`
	CashVariance     decimal.Decimal                           `json:"cash_variance"`
}

func (s Summary) Clone() Summary {
	out := s
	out.TotalsByType = make(map[orderdomain.OrderType]decimal.Decimal, len(s.TotalsByType))
	for k, v := range s.TotalsByType {
		out.TotalsByType[k] = v
	}
	out.PaymentsByMethod = make(map[string]decimal.Decimal, len(s.PaymentsByMethod))
	for k, v := range s.PaymentsByMethod {
		out.PaymentsByMethod[k] = v
	}
	out.CountsByType = make(map[orderdomain.OrderType]int, len(s.CountsByType))
	for k, v := range s.CountsByType {
		out.CountsByType[k] = v
	}
	return out
}
