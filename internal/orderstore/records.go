package orderstore

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ordersync/internal/normalize"
	"github.com/smallbiznis/ordersync/internal/order/domain"
	"gorm.io/datatypes"
)

// Column names follow the change-feed relations so the polling feed and the
// normalizer read these tables without an alias layer.

type headerRecord struct {
	ID              string          `gorm:"column:id;primaryKey;type:varchar(64)"`
	InvoiceNumber   string          `gorm:"column:invoice_number;type:varchar(64);index"`
	PosID           string          `gorm:"column:pos_id;type:varchar(64);index:idx_order_header_pos_shift"`
	ShiftID         string          `gorm:"column:shift_id;type:varchar(64);index:idx_order_header_pos_shift"`
	OrderType       string          `gorm:"column:order_type;type:varchar(32)"`
	Status          string          `gorm:"column:status;type:varchar(32)"`
	Stage           string          `gorm:"column:stage;type:varchar(32)"`
	PaymentState    string          `gorm:"column:payment_state;type:varchar(32)"`
	TableIDs        datatypes.JSON  `gorm:"column:table_ids"`
	CustomerID      string          `gorm:"column:customer_id;type:varchar(64)"`
	CustomerName    string          `gorm:"column:customer_name"`
	CustomerPhone   string          `gorm:"column:customer_phone"`
	DeliveryAddress string          `gorm:"column:delivery_address"`
	DiscountType    string          `gorm:"column:discount_type;type:varchar(16)"`
	DiscountValue   decimal.Decimal `gorm:"column:discount_value;type:numeric(18,4)"`
	Due             decimal.Decimal `gorm:"column:due;type:numeric(18,2)"`
	StatusLog       datatypes.JSON  `gorm:"column:status_log"`
	Version         int64           `gorm:"column:version;not null"`
	Finalized       bool            `gorm:"column:finalized;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null;index:idx_order_header_cursor;autoCreateTime:false"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (headerRecord) TableName() string { return string(normalize.RelationOrders) }

type lineRecord struct {
	ID             string          `gorm:"column:id;primaryKey;type:varchar(128)"`
	OrderID        string          `gorm:"column:order_id;type:varchar(64);not null;index"`
	Position       int             `gorm:"column:position;not null"`
	ItemID         string          `gorm:"column:item_id;type:varchar(64);not null"`
	Name           string          `gorm:"column:name"`
	Quantity       decimal.Decimal `gorm:"column:quantity;type:numeric(18,4)"`
	BasePrice      decimal.Decimal `gorm:"column:base_price;type:numeric(18,2)"`
	Modifiers      datatypes.JSON  `gorm:"column:modifiers"`
	DiscountType   string          `gorm:"column:discount_type;type:varchar(16)"`
	DiscountValue  decimal.Decimal `gorm:"column:discount_value;type:numeric(18,4)"`
	Total          decimal.Decimal `gorm:"column:total;type:numeric(18,2)"`
	KitchenSection string          `gorm:"column:kitchen_section;type:varchar(64)"`
	Status         string          `gorm:"column:status;type:varchar(32)"`
	Locked         bool            `gorm:"column:locked;not null"`
	Notes          string          `gorm:"column:notes"`
	LineVersion    int64           `gorm:"column:line_version;not null"`
}

func (lineRecord) TableName() string { return string(normalize.RelationLines) }

type paymentRecord struct {
	ID         string          `gorm:"column:id;primaryKey;type:varchar(64)"`
	OrderID    string          `gorm:"column:order_id;type:varchar(64);not null;index"`
	Position   int             `gorm:"column:position;not null"`
	MethodID   string          `gorm:"column:method_id;type:varchar(64)"`
	Amount     decimal.Decimal `gorm:"column:amount;type:numeric(18,2)"`
	CapturedAt time.Time       `gorm:"column:captured_at"`
	Reference  string          `gorm:"column:reference"`
}

func (paymentRecord) TableName() string { return string(normalize.RelationPayments) }

type invoiceSequence struct {
	PosID string `gorm:"column:pos_id;primaryKey;type:varchar(64)"`
	Day   string `gorm:"column:day;primaryKey;type:varchar(8)"`
	Seq   int64  `gorm:"column:seq;not null"`
}

func (invoiceSequence) TableName() string { return "invoice_sequence" }

func toHeader(o domain.Order, version int64) headerRecord {
	h := headerRecord{
		ID:              o.ID,
		InvoiceNumber:   o.InvoiceNumber,
		PosID:           o.PosID,
		ShiftID:         o.ShiftID,
		OrderType:       string(o.Type),
		Status:          string(o.Status),
		Stage:           string(o.Stage),
		PaymentState:    string(o.PaymentState),
		TableIDs:        mustJSON(o.Tables),
		CustomerID:      o.Customer.ID,
		CustomerName:    o.Customer.Name,
		CustomerPhone:   o.Customer.Phone,
		DeliveryAddress: o.Customer.Address,
		Due:             o.Totals.Due,
		StatusLog:       mustJSON(o.StatusLog),
		Version:         version,
		Finalized:       o.Status == domain.StatusFinalized,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.Discount != nil {
		h.DiscountType = string(o.Discount.Type)
		h.DiscountValue = o.Discount.Value
	}
	return h
}

func toLines(o domain.Order) []lineRecord {
	out := make([]lineRecord, 0, len(o.Lines))
	for i, l := range o.Lines {
		rec := lineRecord{
			ID:             l.ID,
			OrderID:        o.ID,
			Position:       i,
			ItemID:         l.ItemID,
			Name:           l.Name,
			Quantity:       l.Quantity,
			BasePrice:      l.BasePrice,
			Modifiers:      mustJSON(l.Modifiers),
			Total:          l.Total,
			KitchenSection: l.KitchenSection,
			Status:         string(l.Status),
			Locked:         l.Locked,
			Notes:          l.Notes,
			LineVersion:    l.Version,
		}
		if l.Discount != nil {
			rec.DiscountType = string(l.Discount.Type)
			rec.DiscountValue = l.Discount.Value
		}
		out = append(out, rec)
	}
	return out
}

func toPayments(o domain.Order) []paymentRecord {
	out := make([]paymentRecord, 0, len(o.Payments))
	for i, p := range o.Payments {
		out = append(out, paymentRecord{
			ID:         p.ID,
			OrderID:    o.ID,
			Position:   i,
			MethodID:   p.MethodID,
			Amount:     p.Amount,
			CapturedAt: p.CapturedAt,
			Reference:  p.Reference,
		})
	}
	return out
}

func (h headerRecord) row() normalize.Row {
	return normalize.Row{
		"id":               h.ID,
		"invoice_number":   h.InvoiceNumber,
		"pos_id":           h.PosID,
		"shift_id":         h.ShiftID,
		"order_type":       h.OrderType,
		"status":           h.Status,
		"stage":            h.Stage,
		"table_ids":        []byte(h.TableIDs),
		"customer_id":      h.CustomerID,
		"customer_name":    h.CustomerName,
		"customer_phone":   h.CustomerPhone,
		"delivery_address": h.DeliveryAddress,
		"discount_type":    h.DiscountType,
		"discount_value":   h.DiscountValue,
		"status_log":       []byte(h.StatusLog),
		"version":          h.Version,
		"is_persisted":     true,
		"finalized":        h.Finalized,
		"created_at":       h.CreatedAt,
		"updated_at":       h.UpdatedAt,
	}
}

func (l lineRecord) row() normalize.Row {
	return normalize.Row{
		"id":              l.ID,
		"order_id":        l.OrderID,
		"item_id":         l.ItemID,
		"name":            l.Name,
		"quantity":        l.Quantity,
		"base_price":      l.BasePrice,
		"modifiers":       []byte(l.Modifiers),
		"discount_type":   l.DiscountType,
		"discount_value":  l.DiscountValue,
		"kitchen_section": l.KitchenSection,
		"status":          l.Status,
		"locked":          l.Locked,
		"notes":           l.Notes,
		"line_version":    l.LineVersion,
	}
}

func (p paymentRecord) row() normalize.Row {
	return normalize.Row{
		"id":          p.ID,
		"order_id":    p.OrderID,
		"method_id":   p.MethodID,
		"amount":      p.Amount,
		"captured_at": p.CapturedAt,
		"reference":   p.Reference,
	}
}

func mustJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}
