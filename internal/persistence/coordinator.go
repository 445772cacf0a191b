// Package persistence owns the order being edited on this terminal and
// drives every write of it to the remote store.
//
// A save runs VALIDATE, ALLOCATE_ID (drafts only), SERIALIZE and then a
// single version-checked REMOTE_WRITE. Conflicts are surfaced and the remote
// order adopted; the write itself is never retried.
package persistence

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ordersync/internal/clock"
	"github.com/smallbiznis/ordersync/internal/config"
	kitchendomain "github.com/smallbiznis/ordersync/internal/kitchen/domain"
	"github.com/smallbiznis/ordersync/internal/kitchen/ledger"
	"github.com/smallbiznis/ordersync/internal/localstore"
	"github.com/smallbiznis/ordersync/internal/normalize"
	"github.com/smallbiznis/ordersync/internal/observability/metrics"
	"github.com/smallbiznis/ordersync/internal/observability/tracing"
	"github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/smallbiznis/ordersync/internal/pricing"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const draftNamespace = "draft_orders"

// KitchenPublisher sends dispatched jobs and order updates to the kitchen display.
type KitchenPublisher interface {
	PublishOrder(ctx context.Context, order domain.Order) error
	PublishJobUpdate(ctx context.Context, job kitchendomain.Job) error
}

// KitchenKeySource reports lines that already have kitchen storage rows.
type KitchenKeySource interface {
	KitchenKeys(orderID string) []kitchendomain.LineKey
}

// ShiftLinker resolves and records the shift an order belongs to.
type ShiftLinker interface {
	CurrentShiftID(posID string) (string, bool)
	Attach(ctx context.Context, shiftID, orderID string) error
}

// ConflictSignal tells the UI the order changed elsewhere.
type ConflictSignal struct {
	OrderID       string
	LocalVersion  int64
	RemoteVersion int64
	Remote        domain.Order
	At            time.Time
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	Clock      clock.Clock
	GenID      *snowflake.Node
	Remote     domain.RemoteStore
	Normalizer *normalize.Normalizer
	Ledger     *ledger.Ledger
	Publisher  KitchenPublisher           `optional:"true"`
	Keys       KitchenKeySource           `optional:"true"`
	Shifts     ShiftLinker                `optional:"true"`
	Store      localstore.Store           `optional:"true"`
	Engine     *config.EngineConfigHolder `optional:"true"`
	Metrics    *metrics.EngineMetrics     `optional:"true"`
	Tracer     trace.TracerProvider       `optional:"true"`
}

type Coordinator struct {
	log        *zap.Logger
	posID      string
	clock      clock.Clock
	genID      *snowflake.Node
	remote     domain.RemoteStore
	normalizer *normalize.Normalizer
	ledger     *ledger.Ledger
	publisher  KitchenPublisher
	keys       KitchenKeySource
	shifts     ShiftLinker
	store      localstore.Store
	engine     *config.EngineConfigHolder
	metrics    *metrics.EngineMetrics
	tracer     trace.Tracer

	mu        sync.Mutex
	current   *domain.Order
	revision  uint64
	inflight  map[string]struct{}
	pending   *domain.Stage
	conflicts chan ConflictSignal
}

func New(p Params) *Coordinator {
	store := p.Store
	if store == nil {
		store = localstore.Noop{}
	}
	tracer := tracing.Tracer()
	if p.Tracer != nil {
		tracer = p.Tracer.Tracer(tracing.TracerName)
	}
	return &Coordinator{
		log:        p.Log.Named("persistence.coordinator"),
		posID:      p.Config.PosID,
		clock:      p.Clock,
		genID:      p.GenID,
		remote:     p.Remote,
		normalizer: p.Normalizer,
		ledger:     p.Ledger,
		publisher:  p.Publisher,
		keys:       p.Keys,
		shifts:     p.Shifts,
		store:      store,
		engine:     p.Engine,
		metrics:    p.Metrics,
		tracer:     tracer,
		inflight:   make(map[string]struct{}),
		conflicts:  make(chan ConflictSignal, 16),
	}
}

// Begin makes o the order being edited. Orders without an id get a draft id.
func (c *Coordinator) Begin(o domain.Order) domain.Order {
	o = o.Clone()
	if strings.TrimSpace(o.ID) == "" {
		o.ID = domain.NewDraftID(c.clock.Now())
	}
	if o.State == nil {
		o.State = domain.Draft{}
	}
	if o.PosID == "" {
		o.PosID = c.posID
	}
	if o.Status == "" {
		o.Status = domain.StatusOpen
	}
	if o.Stage == "" {
		o.Stage = domain.StageNew
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = c.clock.Now()
	}
	c.assignLineIDs(&o)
	o = pricing.Reprice(o, c.normalizer.Options())

	c.mu.Lock()
	c.current = &o
	c.revision++
	c.pending = nil
	c.mu.Unlock()

	return o.Clone()
}

// Current returns a copy of the order being edited.
func (c *Coordinator) Current() (domain.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return domain.Order{}, false
	}
	return c.current.Clone(), true
}

// Edit applies fn to a copy of the current order, reprices it and keeps the
// result as a dirty local edit. Finalized orders refuse edits.
func (c *Coordinator) Edit(ctx context.Context, fn func(o *domain.Order)) (domain.Order, error) {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return domain.Order{}, domain.ErrNoCurrentOrder
	}
	if c.current.IsFinalized() {
		c.mu.Unlock()
		return domain.Order{}, domain.ErrOrderFinalized
	}
	next := c.current.Clone()
	fn(&next)
	c.assignLineIDs(&next)
	next.Touch(c.clock.Now())
	next = pricing.Reprice(next, c.normalizer.Options())
	c.current = &next
	c.revision++
	out := next.Clone()
	c.mu.Unlock()

	c.backupDraft(ctx, out)
	return out, nil
}

func (c *Coordinator) assignLineIDs(o *domain.Order) {
	for i := range o.Lines {
		if o.Lines[i].ID != "" {
			continue
		}
		if c.genID != nil {
			o.Lines[i].ID = c.genID.Generate().String()
		} else {
			o.Lines[i].ID = normalize.LineID(o.ID, o.Lines[i].ItemID)
		}
		if o.Lines[i].Status == "" {
			o.Lines[i].Status = domain.LineDraft
		}
		if o.Lines[i].Version == 0 {
			o.Lines[i].Version = 1
		}
	}
}

// Validate runs the local hard stops without touching the network.
func (c *Coordinator) Validate(o domain.Order) error {
	return domain.Validate(o)
}

func (c *Coordinator) Conflicts() <-chan ConflictSignal {
	return c.conflicts
}

func (c *Coordinator) PendingFinalize() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Refresh replaces the local order with the remote copy of id.
func (c *Coordinator) Refresh(ctx context.Context, id string) (domain.Order, error) {
	ctx, span := c.tracer.Start(ctx, "persistence.refresh")
	defer span.End()

	remote, err := c.getOrder(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Order{}, err
	}

	c.mu.Lock()
	c.current = &remote
	c.revision++
	c.mu.Unlock()

	return remote.Clone(), nil
}

// RestoreDrafts reads draft snapshots kept on the device.
func (c *Coordinator) RestoreDrafts(ctx context.Context) ([]domain.Order, error) {
	if !c.store.Available() {
		return nil, nil
	}
	records, err := c.store.List(ctx, draftNamespace)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		order, err := c.normalizer.FromDraft([]byte(rec.Payload))
		if err != nil {
			c.log.Warn("draft snapshot skipped", zap.String("key", rec.Key), zap.Error(err))
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

func (c *Coordinator) backupDraft(ctx context.Context, o domain.Order) {
	if !c.store.Available() || o.IsFinalized() {
		return
	}
	raw, err := normalize.Serialize(o)
	if err != nil {
		c.log.Warn("draft snapshot failed", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	if err := c.store.Put(ctx, draftNamespace, o.ID, json.RawMessage(raw)); err != nil {
		c.log.Warn("draft snapshot failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (c *Coordinator) dropDraft(ctx context.Context, id string) {
	if !c.store.Available() {
		return
	}
	if err := c.store.Delete(ctx, draftNamespace, id); err != nil {
		c.log.Debug("draft snapshot not removed", zap.String("order_id", id), zap.Error(err))
	}
}

func (c *Coordinator) signal(s ConflictSignal) {
	select {
	case c.conflicts <- s:
	default:
		select {
		case <-c.conflicts:
		default:
		}
		select {
		case c.conflicts <- s:
		default:
		}
	}
}
