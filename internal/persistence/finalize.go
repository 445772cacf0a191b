package persistence

import (
	"context"
	"fmt"

	"github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/smallbiznis/ordersync/internal/pricing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Finalize moves the current order to stage and saves it as finalized. An
// order with an outstanding balance is parked until CapturePayment settles it.
func (c *Coordinator) Finalize(ctx context.Context, stage domain.Stage) (domain.Order, error) {
	ctx, span := c.tracer.Start(ctx, "persistence.finalize")
	defer span.End()
	span.SetAttributes(attribute.String("order.stage", string(stage)))

	if stage != domain.StageClosed && stage != domain.StageDelivered {
		return domain.Order{}, domain.ErrInvalidStage
	}

	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return domain.Order{}, domain.ErrNoCurrentOrder
	}
	summary := pricing.SummarizePayments(c.current.Totals, c.current.Payments)
	if summary.State != domain.PaymentPaid {
		parked := stage
		c.pending = &parked
		current := c.current.Clone()
		c.mu.Unlock()

		c.log.Info("finalize parked until paid",
			zap.String("order_id", current.ID),
			zap.String("remaining", summary.Remaining.StringFixed(2)),
		)
		return current, fmt.Errorf("%w: %s remaining", domain.ErrPaymentRequired, summary.Remaining.StringFixed(2))
	}
	c.mu.Unlock()

	now := c.clock.Now()
	saved, err := c.saveCurrent(ctx, func(o *domain.Order) {
		o.Stage = stage
		o.Status = domain.StatusFinalized
		for i := range o.Lines {
			o.Lines[i].Locked = true
		}
		o.Touch(now)
		o.StatusLog = append(o.StatusLog, domain.StatusLog{
			Status:       o.Status,
			Stage:        o.Stage,
			PaymentState: o.PaymentState,
			ActorID:      c.posID,
			ChangedAt:    now,
		})
	})
	if err != nil {
		span.RecordError(err)
		return saved, err
	}

	saved.State = domain.Finalized{Version: saved.Version()}
	c.mu.Lock()
	if c.current != nil && c.current.ID == saved.ID {
		finalized := saved.Clone()
		c.current = &finalized
	}
	c.pending = nil
	c.mu.Unlock()
	c.dropDraft(ctx, saved.ID)

	return saved.Clone(), nil
}

// CapturePayment records a payment on the current order. When it settles the
// balance of an order with a parked finalize, the finalize resumes.
func (c *Coordinator) CapturePayment(ctx context.Context, p domain.Payment) (domain.Order, error) {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return domain.Order{}, domain.ErrNoCurrentOrder
	}
	if c.current.IsFinalized() {
		c.mu.Unlock()
		return domain.Order{}, domain.ErrOrderFinalized
	}
	if err := pricing.CanAcceptPayment(c.current.Totals, c.current.Payments, p.Amount); err != nil {
		c.mu.Unlock()
		return domain.Order{}, err
	}

	now := c.clock.Now()
	if p.ID == "" && c.genID != nil {
		p.ID = c.genID.Generate().String()
	}
	if p.CapturedAt.IsZero() {
		p.CapturedAt = now
	}
	p.Amount = pricing.Round(p.Amount)

	next := c.current.Clone()
	before := next.PaymentState
	next.Payments = append(next.Payments, p)
	next.Touch(now)
	next = pricing.Reprice(next, c.normalizer.Options())
	if next.PaymentState != before {
		next.StatusLog = append(next.StatusLog, domain.StatusLog{
			Status:       next.Status,
			Stage:        next.Stage,
			PaymentState: next.PaymentState,
			ActorID:      c.posID,
			ChangedAt:    now,
		})
	}
	c.current = &next
	c.revision++
	pending := c.pending
	out := next.Clone()
	c.mu.Unlock()

	c.backupDraft(ctx, out)

	if pending != nil && out.PaymentState == domain.PaymentPaid {
		c.log.Info("balance settled, resuming finalize", zap.String("order_id", out.ID))
		return c.Finalize(ctx, *pending)
	}
	return out, nil
}
