// Package normalize converts heterogeneous order records into the canonical
// domain.Order shape. It never fails on malformed fields: it falls back to
// safe defaults and logs what it dropped.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/smallbiznis/ordersync/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrMissingOrderID = errors.New("missing_order_id")
	ErrMalformedDraft = errors.New("malformed_draft")
)

// totalTolerance is how far a stored line total may drift from the
// recomputed one before the disagreement is logged.
var totalTolerance = decimal.New(1, -2)

type Params struct {
	fx.In

	Log    *zap.Logger
	Engine *config.EngineConfigHolder `optional:"true"`
}

type Normalizer struct {
	log    *zap.Logger
	engine *config.EngineConfigHolder
}

func New(p Params) *Normalizer {
	return &Normalizer{
		log:    p.Log.Named("normalize"),
		engine: p.Engine,
	}
}

// NewStatic builds a normalizer with fixed pricing options, used by tests and tools.
func NewStatic(log *zap.Logger, cfg config.EngineConfig) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return New(Params{Log: log, Engine: config.NewStaticEngineConfigHolder(cfg)})
}

func (n *Normalizer) Options() pricing.Options {
	return pricing.OptionsFromConfig(n.engine.Get().Pricing)
}

// FromRows joins a relational header with its child rows.
func (n *Normalizer) FromRows(header Row, lines []Row, payments []Row) (domain.Order, error) {
	orderID := header.str(headerID)
	if orderID == "" {
		return domain.Order{}, ErrMissingOrderID
	}
	return n.build(header, lines, payments), nil
}

// FromRemote decodes an order returned by the remote store, with lines and
// payments nested inside the header document.
func (n *Normalizer) FromRemote(doc map[string]any) (domain.Order, error) {
	header := Row(doc)
	if header.str(headerID) == "" {
		return domain.Order{}, ErrMissingOrderID
	}
	return n.build(header, header.rows(headerLines), header.rows(headerPayments)), nil
}

// FromDraft decodes a locally serialized draft snapshot. A snapshot with no
// id is still a draft; it receives none here and the caller assigns one.
func (n *Normalizer) FromDraft(raw []byte) (domain.Order, error) {
	var doc map[string]any
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrMalformedDraft, err)
	}
	header := Row(doc)
	return n.build(header, header.rows(headerLines), header.rows(headerPayments)), nil
}

func (n *Normalizer) build(header Row, lineRows []Row, paymentRows []Row) domain.Order {
	orderID := header.str(headerID)
	order := domain.Order{
		ID:            orderID,
		InvoiceNumber: header.str(headerInvoice),
		PosID:         header.str(headerPos),
		ShiftID:       header.str(headerShift),
		Type:          orderType(header.str(headerType)),
		Status:        domain.Status(strings.ToLower(header.str(headerStatus))),
		Stage:         domain.Stage(strings.ToLower(header.str(headerStage))),
		Tables:        header.strings(headerTables),
		Customer:      customer(header),
		Discount:      discount(header),
		CreatedAt:     header.time(headerCreated),
		UpdatedAt:     header.time(headerUpdated),
	}
	if order.Status == "" {
		order.Status = domain.StatusOpen
	}
	if order.Stage == "" {
		order.Stage = domain.StageNew
	}
	order.State = state(orderID, header)

	for _, row := range lineRows {
		if line, ok := n.line(orderID, row); ok {
			order.Lines = append(order.Lines, line)
		}
	}
	for _, row := range paymentRows {
		if p, ok := n.payment(orderID, row); ok {
			order.Payments = append(order.Payments, p)
		}
	}
	if order.Lines == nil {
		order.Lines = []domain.Line{}
	}
	if order.Payments == nil {
		order.Payments = []domain.Payment{}
	}

	order = pricing.Reprice(order, n.Options())
	order.StatusLog = statusLog(header, order)
	return order
}

func state(orderID string, header Row) domain.State {
	version := header.integer(headerVersion)
	persisted := header.boolean(headerPersisted)
	if _, explicit := header.lookup(headerPersisted); !explicit {
		persisted = version > 0 && !domain.IsDraftID(orderID)
	}
	switch {
	case !persisted || version <= 0:
		return domain.Draft{}
	case header.boolean(headerFinalized):
		return domain.Finalized{Version: version}
	default:
		return domain.Saved{Version: version, Dirty: header.boolean(headerDirty)}
	}
}

func orderType(raw string) domain.OrderType {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")) {
	case "dine_in", "dinein", "dine in", "1":
		return domain.OrderTypeDineIn
	case "delivery", "2":
		return domain.OrderTypeDelivery
	case "takeaway", "take_away", "takeout", "pickup", "3":
		return domain.OrderTypeTakeaway
	default:
		return domain.OrderType(strings.ToLower(strings.TrimSpace(raw)))
	}
}

func customer(header Row) domain.Customer {
	if nested, ok := header.object(headerCustomer); ok {
		return domain.Customer{
			ID:      nested.str(nestedCustomerID),
			Name:    nested.str(nestedCustomerName),
			Phone:   nested.str(nestedCustomerPhone),
			Address: nested.str(nestedCustomerAddr),
		}
	}
	return domain.Customer{
		ID:      header.str(customerID),
		Name:    header.str(customerName),
		Phone:   header.str(customerPhone),
		Address: header.str(customerAddress),
	}
}

// discount accepts a nested {type,value} object or flat discount columns.
// Anything that is not a positive percent or amount means no discount.
func discount(src Row) *domain.Discount {
	typ := src.str(discountType)
	value, ok := src.dec(discountValue)
	if nested, found := src.object(discountObject); found {
		typ = nested.str([]string{"type"})
		value, ok = nested.dec([]string{"value"})
	}
	if !ok || !value.IsPositive() {
		return nil
	}
	switch domain.DiscountType(strings.ToLower(typ)) {
	case domain.DiscountPercent:
		return &domain.Discount{Type: domain.DiscountPercent, Value: decimal.Min(value, decimal.NewFromInt(100))}
	case domain.DiscountAmount:
		return &domain.Discount{Type: domain.DiscountAmount, Value: value}
	default:
		return nil
	}
}

// KitchenSection canonicalises a station tag, falling back to expo.
func KitchenSection(raw string) string {
	section := slug.Make(strings.TrimSpace(raw))
	if section == "" {
		return domain.DefaultKitchenSection
	}
	return section
}

func (n *Normalizer) line(orderID string, row Row) (domain.Line, bool) {
	itemID := row.str(lineItemID)
	id := row.str(lineID)
	if itemID == "" {
		n.log.Warn("line dropped",
			zap.String("order_id", orderID),
			zap.String("line_id", id),
			zap.String("reason", "missing item identifier"),
		)
		return domain.Line{}, false
	}
	if id == "" {
		id = LineID(orderID, itemID)
	}

	line := domain.Line{
		ID:             id,
		ItemID:         itemID,
		Name:           row.str(lineName),
		KitchenSection: KitchenSection(row.str(lineSection)),
		Status:         domain.LineStatus(strings.ToLower(row.str(lineStatus))),
		Locked:         row.boolean(lineLocked),
		Notes:          row.str(lineNotes),
		Version:        row.integer(lineVersion),
		Discount:       discount(row),
	}
	if line.Status == "" {
		line.Status = domain.LineDraft
	}
	if line.Version <= 0 {
		line.Version = 1
	}
	for _, m := range row.rows(lineModifiers) {
		line.Modifiers = append(line.Modifiers, modifier(m))
	}

	qty, hasQty := row.dec(lineQuantity)
	base, hasBase := row.dec(lineBase)
	total, hasTotal := row.dec(lineTotal)

	switch {
	case !hasQty && !hasBase && hasTotal:
		// No geometry: the stored total is all there is.
		line.Quantity = decimal.NewFromInt(1)
		line.BasePrice = total
		line.Modifiers = nil
	case hasQty && !hasBase && hasTotal && qty.IsPositive():
		// Keep the quantity only when a cent-exact unit price reproduces
		// the stored total; otherwise fold the line into one unit.
		unit := pricing.Round(total.Div(qty))
		if pricing.Round(unit.Mul(pricing.RoundQuantity(qty))).Equal(total) {
			line.Quantity = qty
			line.BasePrice = unit
		} else {
			line.Quantity = decimal.NewFromInt(1)
			line.BasePrice = total
		}
		line.Modifiers = nil
	default:
		if !hasQty {
			qty = decimal.NewFromInt(1)
		}
		line.Quantity = qty
		line.BasePrice = base
	}

	priced := pricing.PriceLine(line)
	if hasTotal && hasQty && hasBase && priced.Total.Sub(total).Abs().GreaterThan(totalTolerance) {
		n.log.Debug("stored line total disagrees with geometry",
			zap.String("order_id", orderID),
			zap.String("line_id", id),
			zap.String("stored", total.String()),
			zap.String("computed", priced.Total.String()),
		)
	}
	return priced, true
}

func modifier(row Row) domain.Modifier {
	m := domain.Modifier{
		ID:   row.str(modifierID),
		Name: row.str(modifierName),
		Type: domain.ModifierAddOn,
	}
	if strings.EqualFold(row.str(modifierType), string(domain.ModifierRemoval)) {
		m.Type = domain.ModifierRemoval
	}
	delta, _ := row.dec(modifierDelta)
	if m.Type == domain.ModifierRemoval && delta.IsPositive() {
		delta = delta.Neg()
	}
	m.Delta = delta
	return m
}

func (n *Normalizer) payment(orderID string, row Row) (domain.Payment, bool) {
	amount, ok := row.dec(paymentAmount)
	if !ok || !amount.IsPositive() {
		n.log.Warn("payment dropped",
			zap.String("order_id", orderID),
			zap.String("payment_id", row.str(paymentID)),
			zap.String("reason", "non-positive amount"),
		)
		return domain.Payment{}, false
	}
	return domain.Payment{
		ID:         row.str(paymentID),
		MethodID:   row.str(paymentMethod),
		Amount:     pricing.Round(amount),
		CapturedAt: row.time(paymentCaptured),
		Reference:  row.str(paymentRef),
	}, true
}

// statusLog keeps the stored log or synthesises a single entry from the header.
func statusLog(header Row, order domain.Order) []domain.StatusLog {
	var out []domain.StatusLog
	for _, row := range header.rows(headerStatusLog) {
		out = append(out, domain.StatusLog{
			Status:       domain.Status(row.str(logStatus)),
			Stage:        domain.Stage(row.str(logStage)),
			PaymentState: domain.PaymentState(row.str(logPayState)),
			ActorID:      row.str(logActor),
			ChangedAt:    row.time(logChanged),
		})
	}
	if len(out) > 0 {
		return out
	}
	at := order.UpdatedAt
	if at.IsZero() {
		at = order.CreatedAt
	}
	return []domain.StatusLog{{
		Status:       order.Status,
		Stage:        order.Stage,
		PaymentState: order.PaymentState,
		ChangedAt:    at,
	}}
}

// LineID is the fallback identity for a line with no id of its own.
func LineID(orderID, itemID string) string {
	return orderID + "::" + itemID
}

// OrderIDOf returns the parent order id of a line or payment row.
func OrderIDOf(row Row) string {
	return row.str(lineOrderID)
}

// RowKey returns the identity of a row within its relation.
func RowKey(rel Relation, row Row) string {
	switch rel {
	case RelationLines:
		if id := row.str(lineID); id != "" {
			return id
		}
		if item := row.str(lineItemID); item != "" {
			return LineID(OrderIDOf(row), item)
		}
		return ""
	case RelationPayments:
		return row.str(paymentID)
	default:
		return row.str(headerID)
	}
}

// HeaderExcluded reports whether a header row is cancelled or void.
func HeaderExcluded(header Row) bool {
	return domain.Status(strings.ToLower(header.str(headerStatus))).Excluded()
}
