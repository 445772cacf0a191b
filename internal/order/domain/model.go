package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeDelivery OrderType = "delivery"
	OrderTypeTakeaway OrderType = "takeaway"
)

func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeDineIn, OrderTypeDelivery, OrderTypeTakeaway:
		return true
	default:
		return false
	}
}

// Status is the lifecycle status of an order header.
type Status string

const (
	StatusOpen      Status = "open"
	StatusFinalized Status = "finalized"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
	StatusVoid      Status = "void"
)

// Excluded reports whether the order is dropped from every queue view.
func (s Status) Excluded() bool {
	return s == StatusCancelled || s == StatusVoid
}

// Stage is the fulfillment stage.
type Stage string

const (
	StageNew       Stage = "new"
	StagePreparing Stage = "preparing"
	StageReady     Stage = "ready"
	StageDelivered Stage = "delivered"
	StageClosed    Stage = "closed"
)

type PaymentState string

const (
	PaymentUnpaid  PaymentState = "unpaid"
	PaymentPartial PaymentState = "partial"
	PaymentPaid    PaymentState = "paid"
)

type LineStatus string

const (
	LineDraft     LineStatus = "draft"
	LineQueued    LineStatus = "queued"
	LinePreparing LineStatus = "preparing"
	LineReady     LineStatus = "ready"
	LineServed    LineStatus = "served"
	LineCompleted LineStatus = "completed"
)

// Done reports whether the kitchen is finished with the line.
func (s LineStatus) Done() bool {
	return s == LineServed || s == LineCompleted
}

// InKitchen reports whether the line has already reached kitchen storage.
func (s LineStatus) InKitchen() bool {
	switch s {
	case LinePreparing, LineReady, LineServed, LineCompleted:
		return true
	default:
		return false
	}
}

type ModifierType string

const (
	ModifierAddOn   ModifierType = "add_on"
	ModifierRemoval ModifierType = "removal"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountAmount  DiscountType = "amount"
)

// DefaultKitchenSection receives lines without a routable station.
const DefaultKitchenSection = "expo"

type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

type Modifier struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Type  ModifierType    `json:"type"`
	Delta decimal.Decimal `json:"delta"`
}

type Line struct {
	ID             string          `json:"id"`
	ItemID         string          `json:"item_id"`
	Name           string          `json:"name,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	BasePrice      decimal.Decimal `json:"base_price"`
	Modifiers      []Modifier      `json:"modifiers,omitempty"`
	Discount       *Discount       `json:"discount,omitempty"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Gross          decimal.Decimal `json:"gross"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	KitchenSection string          `json:"kitchen_section"`
	Status         LineStatus      `json:"status"`
	Locked         bool            `json:"locked,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Version        int64           `json:"line_version"`
}

type Payment struct {
	ID         string          `json:"id"`
	MethodID   string          `json:"method_id"`
	Amount     decimal.Decimal `json:"amount"`
	CapturedAt time.Time       `json:"captured_at"`
	Reference  string          `json:"reference,omitempty"`
}

// Totals is always derived from lines and discount.
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Service     decimal.Decimal `json:"service"`
	VAT         decimal.Decimal `json:"vat"`
	Discount    decimal.Decimal `json:"discount_total"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Due         decimal.Decimal `json:"due"`
}

type Customer struct {
	ID      string `json:"customer_id,omitempty"`
	Name    string `json:"customer_name,omitempty"`
	Phone   string `json:"customer_phone,omitempty"`
	Address string `json:"delivery_address,omitempty"`
}

type StatusLog struct {
	Status       Status       `json:"status"`
	Stage        Stage        `json:"stage"`
	PaymentState PaymentState `json:"payment_state"`
	ActorID      string       `json:"actor_id,omitempty"`
	ChangedAt    time.Time    `json:"changed_at"`
}

// Order is the denormalized aggregate. It owns its lines and payments.
type Order struct {
	ID            string       `json:"id"`
	InvoiceNumber string       `json:"invoice_number,omitempty"`
	PosID         string       `json:"pos_id,omitempty"`
	ShiftID       string       `json:"shift_id,omitempty"`
	Type          OrderType    `json:"order_type"`
	Status        Status       `json:"status"`
	Stage         Stage        `json:"stage"`
	PaymentState  PaymentState `json:"payment_state"`
	Tables        []string     `json:"table_ids,omitempty"`
	Customer      Customer     `json:"customer"`
	Lines         []Line       `json:"lines"`
	Payments      []Payment    `json:"payments"`
	Discount      *Discount    `json:"discount,omitempty"`
	Totals        Totals       `json:"totals"`
	StatusLog     []StatusLog  `json:"status_log,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	State State `json:"-"`
}

func (o Order) Version() int64 { return VersionOf(o.State) }

// IsPersisted reports whether the remote store has acknowledged the order.
func (o Order) IsPersisted() bool {
	switch o.State.(type) {
	case Saved, Finalized:
		return true
	default:
		return false
	}
}

func (o Order) IsDraft() bool {
	_, ok := o.State.(Draft)
	return ok || o.State == nil
}

// IsDirty reports whether the order has local edits not yet acknowledged.
func (o Order) IsDirty() bool {
	switch s := o.State.(type) {
	case Saved:
		return s.Dirty
	case Finalized:
		return false
	default:
		return true
	}
}

func (o Order) IsFinalized() bool {
	_, ok := o.State.(Finalized)
	return ok
}

// Touch records a local edit.
func (o *Order) Touch(at time.Time) {
	if s, ok := o.State.(Saved); ok {
		o.State = Saved{Version: s.Version, Dirty: true}
	}
	if o.State == nil {
		o.State = Draft{}
	}
	o.UpdatedAt = at
}

// LineByID returns the index of the line with id, or -1.
func (o Order) LineByID(id string) int {
	for i := range o.Lines {
		if o.Lines[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so snapshots never alias.
func (o Order) Clone() Order {
	out := o
	if o.Tables != nil {
		out.Tables = append([]string(nil), o.Tables...)
	}
	if o.Lines != nil {
		out.Lines = make([]Line, len(o.Lines))
		for i, line := range o.Lines {
			out.Lines[i] = line.Clone()
		}
	}
	if o.Payments != nil {
		out.Payments = append([]Payment(nil), o.Payments...)
	}
	if o.StatusLog != nil {
		out.StatusLog = append([]StatusLog(nil), o.StatusLog...)
	}
	if o.Discount != nil {
		d := *o.Discount
		out.Discount = &d
	}
	return out
}

func (l Line) Clone() Line {
	out := l
	if l.Modifiers != nil {
		out.Modifiers = append([]Modifier(nil), l.Modifiers...)
	}
	if l.Discount != nil {
		d := *l.Discount
		out.Discount = &d
	}
	return out
}
