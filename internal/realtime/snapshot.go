package realtime

import (
	"time"

	"github.com/smallbiznis/ordersync/internal/order/domain"
)

// RelationState tracks how far a watched relation has come up.
type RelationState int

const (
	Uninitialized RelationState = iota
	Hydrating
	Live
)

func (s RelationState) String() string {
	switch s {
	case Hydrating:
		return "hydrating"
	case Live:
		return "live"
	default:
		return "uninitialized"
	}
}

// HistoryEntry is a completed order with a sequence number that never
// changes once assigned.
type HistoryEntry struct {
	Seq   int64        `json:"seq"`
	Order domain.Order `json:"order"`
}

type TableStatus struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	OrderIDs []string `json:"order_ids,omitempty"`
}

// Snapshot is the derived queue view. Orders holds every non-excluded order;
// Active and History partition it.
type Snapshot struct {
	Revision   uint64         `json:"revision"`
	ComputedAt time.Time      `json:"computed_at"`
	Orders     []domain.Order `json:"orders"`
	Active     []domain.Order `json:"active"`
	History    []HistoryEntry `json:"history"`
	Tables     []TableStatus  `json:"tables"`
	OpenShifts []string       `json:"open_shifts"`
}

func (s Snapshot) Clone() Snapshot {
	out := s
	out.Orders = cloneOrders(s.Orders)
	out.Active = cloneOrders(s.Active)
	if s.History != nil {
		out.History = make([]HistoryEntry, len(s.History))
		for i, h := range s.History {
			out.History[i] = HistoryEntry{Seq: h.Seq, Order: h.Order.Clone()}
		}
	}
	if s.Tables != nil {
		out.Tables = make([]TableStatus, len(s.Tables))
		for i, t := range s.Tables {
			t.OrderIDs = append([]string(nil), t.OrderIDs...)
			out.Tables[i] = t
		}
	}
	out.OpenShifts = append([]string(nil), s.OpenShifts...)
	return out
}

func cloneOrders(in []domain.Order) []domain.Order {
	if in == nil {
		return nil
	}
	out := make([]domain.Order, len(in))
	for i, o := range in {
		out[i] = o.Clone()
	}
	return out
}

// Completed is the single completion predicate for every order type: at
// least one line, every line done, and paid >= due > 0.
func Completed(o domain.Order) bool {
	if len(o.Lines) == 0 {
		return false
	}
	for _, line := range o.Lines {
		if !line.Status.Done() {
			return false
		}
	}
	return o.PaymentState == domain.PaymentPaid
}
