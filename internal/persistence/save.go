package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	kitchendomain "github.com/smallbiznis/ordersync/internal/kitchen/domain"
	"github.com/smallbiznis/ordersync/internal/normalize"
	"github.com/smallbiznis/ordersync/internal/order/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	outcomeSaved     = "saved"
	outcomeNoop      = "noop"
	outcomeInvalid   = "invalid"
	outcomeConflict  = "conflict"
	outcomeTransient = "transient"
	outcomeFailed    = "failed"
)

// Save writes the current order. A clean saved order is returned as is.
func (c *Coordinator) Save(ctx context.Context) (domain.Order, error) {
	ctx, span := c.tracer.Start(ctx, "persistence.save")
	defer span.End()

	saved, err := c.saveCurrent(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return saved, err
	}
	span.SetAttributes(
		attribute.String("order.id", saved.ID),
		attribute.Int64("order.version", saved.Version()),
	)
	return saved, nil
}

// saveCurrent snapshots the current order, applies prepare to the snapshot
// and runs one save attempt for it.
func (c *Coordinator) saveCurrent(ctx context.Context, prepare func(o *domain.Order)) (domain.Order, error) {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return domain.Order{}, domain.ErrNoCurrentOrder
	}
	order := c.current.Clone()
	if order.IsFinalized() {
		c.mu.Unlock()
		return order, domain.ErrOrderFinalized
	}
	if _, busy := c.inflight[order.ID]; busy {
		c.mu.Unlock()
		return order, domain.ErrSaveInProgress
	}
	if prepare == nil && order.IsPersisted() && !order.IsDirty() {
		c.mu.Unlock()
		c.metrics.SaveOutcome(outcomeNoop)
		return order, nil
	}
	c.inflight[order.ID] = struct{}{}
	revision := c.revision
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, order.ID)
		c.mu.Unlock()
	}()

	if prepare != nil {
		prepare(&order)
	}
	return c.save(ctx, order, revision)
}

func (c *Coordinator) save(ctx context.Context, order domain.Order, revision uint64) (domain.Order, error) {
	draftID := order.ID
	log := c.log.With(zap.String("order_id", draftID))

	if err := domain.Validate(order); err != nil {
		c.metrics.SaveOutcome(outcomeInvalid)
		return order, err
	}

	if order.PosID == "" {
		order.PosID = c.posID
	}
	if order.ShiftID == "" && c.shifts != nil {
		if shiftID, ok := c.shifts.CurrentShiftID(order.PosID); ok {
			order.ShiftID = shiftID
		}
	}
	if order.ShiftID == "" {
		c.metrics.SaveOutcome(outcomeFailed)
		return order, domain.Fatal(domain.ErrMissingShift)
	}

	var (
		saved domain.Order
		err   error
	)
	if order.IsPersisted() {
		saved, err = c.write(ctx, order, domain.SaveRequest{Order: order, ExpectedVersion: order.Version()})
	} else {
		saved, err = c.insert(ctx, order)
	}
	if err != nil {
		var conflict *domain.ConflictError
		switch {
		case errors.As(err, &conflict):
			return c.resolveConflict(ctx, draftID, order, conflict)
		case errors.Is(err, domain.ErrTransient):
			c.metrics.SaveOutcome(outcomeTransient)
			log.Warn("order save failed, local state kept", zap.Error(err))
		default:
			c.metrics.SaveOutcome(outcomeFailed)
			log.Error("order save failed", zap.Error(err))
		}
		return order, err
	}

	if saved.Version() <= order.Version() {
		c.metrics.SaveOutcome(outcomeFailed)
		return order, domain.Fatal(fmt.Errorf("remote version %d does not advance %d", saved.Version(), order.Version()))
	}
	if _, ok := saved.State.(domain.Finalized); !ok {
		saved.State = domain.Saved{Version: saved.Version()}
	}

	if c.shifts != nil {
		if err := c.shifts.Attach(ctx, saved.ShiftID, saved.ID); err != nil {
			log.Warn("shift attach failed", zap.String("shift_id", saved.ShiftID), zap.Error(err))
		}
	}

	saved = c.dispatch(ctx, saved)
	if c.apply(draftID, saved, revision) {
		c.dropDraft(ctx, draftID)
	}

	c.metrics.SaveOutcome(outcomeSaved)
	log.Info("order saved",
		zap.String("saved_id", saved.ID),
		zap.Int64("version", saved.Version()),
		zap.String("state", domain.StateName(saved.State)),
	)
	return saved.Clone(), nil
}

// insert allocates a permanent id and writes the first version. An id the
// store reports as taken is discarded and a fresh one allocated.
func (c *Coordinator) insert(ctx context.Context, draft domain.Order) (domain.Order, error) {
	attempts := c.engine.Get().Persistence.IDAllocationAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		invoice, err := retryRead(ctx, c, "next_invoice_number", func(ctx context.Context) (domain.InvoiceNumber, error) {
			return c.remote.NextInvoiceNumber(ctx, draft.PosID)
		})
		if err != nil {
			return domain.Order{}, err
		}

		order := withPermanentID(draft, invoice)
		saved, err := c.write(ctx, order, domain.SaveRequest{Order: order, Insert: true})
		if errors.Is(err, domain.ErrIDCollision) {
			c.log.Warn("allocated id already taken",
				zap.String("order_id", order.ID),
				zap.Int("attempt", attempt),
			)
			lastErr = err
			continue
		}
		return saved, err
	}
	return domain.Order{}, fmt.Errorf("allocate order id after %d attempts: %w", attempts, lastErr)
}

// write serializes order and performs the single remote write.
func (c *Coordinator) write(ctx context.Context, order domain.Order, req domain.SaveRequest) (domain.Order, error) {
	if _, err := normalize.Serialize(order); err != nil {
		return domain.Order{}, domain.Fatal(err)
	}
	return c.remote.SaveOrder(ctx, req)
}

// withPermanentID moves draft onto the allocated id. Line ids derived from
// the draft id follow it.
func withPermanentID(draft domain.Order, invoice domain.InvoiceNumber) domain.Order {
	order := draft.Clone()
	prefix := draft.ID + "::"
	order.ID = invoice.ID
	order.InvoiceNumber = invoice.Value
	for i := range order.Lines {
		if strings.HasPrefix(order.Lines[i].ID, prefix) {
			order.Lines[i].ID = normalize.LineID(order.ID, strings.TrimPrefix(order.Lines[i].ID, prefix))
		}
	}
	return order
}

func (c *Coordinator) resolveConflict(ctx context.Context, draftID string, local domain.Order, conflict *domain.ConflictError) (domain.Order, error) {
	c.metrics.SaveOutcome(outcomeConflict)
	c.metrics.Conflict()

	var remote domain.Order
	if conflict.Remote != nil {
		remote = conflict.Remote.Clone()
	} else {
		fetched, err := c.getOrder(ctx, local.ID)
		if err != nil {
			c.log.Warn("conflict refetch failed", zap.String("order_id", local.ID), zap.Error(err))
			return local, conflict
		}
		remote = fetched
		conflict.Remote = &fetched
	}

	c.mu.Lock()
	if c.current != nil && c.current.ID == draftID {
		adopted := remote.Clone()
		c.current = &adopted
		c.revision++
	}
	c.mu.Unlock()

	c.signal(ConflictSignal{
		OrderID:       local.ID,
		LocalVersion:  local.Version(),
		RemoteVersion: remote.Version(),
		Remote:        remote.Clone(),
		At:            c.clock.Now(),
	})
	c.log.Warn("order changed elsewhere",
		zap.String("order_id", local.ID),
		zap.Int64("local_version", local.Version()),
		zap.Int64("remote_version", remote.Version()),
	)
	return remote.Clone(), conflict
}

// dispatch sends lines not yet in the kitchen as one job per station. The
// ledger is marked before anything is published.
func (c *Coordinator) dispatch(ctx context.Context, saved domain.Order) domain.Order {
	if c.ledger == nil || c.genID == nil {
		return saved
	}
	var known []kitchendomain.LineKey
	if c.keys != nil {
		known = c.keys.KitchenKeys(saved.ID)
	}
	lines := c.ledger.Filter(saved.ID, saved.Lines, known...)
	if len(lines) == 0 {
		return saved
	}

	jobs := kitchendomain.BuildJobs(saved, lines, c.clock.Now(), c.genID)
	keys := make([]kitchendomain.LineKey, 0, len(lines))
	for _, job := range jobs {
		keys = append(keys, job.LineKeys()...)
	}
	if err := c.ledger.Mark(ctx, keys); err != nil {
		c.log.Warn("kitchen ledger not persisted", zap.String("order_id", saved.ID), zap.Error(err))
	}
	c.metrics.KitchenLines(len(keys))

	for _, line := range lines {
		i := saved.LineByID(line.ID)
		if i >= 0 && unsent(saved.Lines[i].Status) {
			saved.Lines[i].Status = domain.LineQueued
		}
	}

	if c.publisher != nil {
		for _, job := range jobs {
			if err := c.publisher.PublishJobUpdate(ctx, job); err != nil {
				c.log.Warn("kitchen job publish failed", zap.String("job_key", job.Key()), zap.Error(err))
			}
		}
		if err := c.publisher.PublishOrder(ctx, saved); err != nil {
			c.log.Warn("kitchen order publish failed", zap.String("order_id", saved.ID), zap.Error(err))
		}
	}
	return saved
}

// apply adopts a save result unless the terminal moved to another order
// meanwhile. Edits made during the write stay, on top of the new version.
// It reports whether the local order is now clean.
func (c *Coordinator) apply(draftID string, saved domain.Order, revision uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.ID != draftID {
		c.log.Info("stale save result ignored", zap.String("order_id", saved.ID))
		return draftID != saved.ID
	}
	if c.revision == revision {
		adopted := saved.Clone()
		c.current = &adopted
		return true
	}

	merged := c.current.Clone()
	merged.ID = saved.ID
	merged.InvoiceNumber = saved.InvoiceNumber
	merged.ShiftID = saved.ShiftID
	merged.State = domain.Saved{Version: saved.Version(), Dirty: true}
	prefix := draftID + "::"
	for i := range merged.Lines {
		if strings.HasPrefix(merged.Lines[i].ID, prefix) {
			merged.Lines[i].ID = normalize.LineID(saved.ID, strings.TrimPrefix(merged.Lines[i].ID, prefix))
		}
		if j := saved.LineByID(merged.Lines[i].ID); j >= 0 && saved.Lines[j].Status == domain.LineQueued && unsent(merged.Lines[i].Status) {
			merged.Lines[i].Status = domain.LineQueued
		}
	}
	c.current = &merged
	return false
}

func unsent(s domain.LineStatus) bool {
	return s == "" || s == domain.LineDraft
}
