// Package realtime keeps the per-relation row maps fed by the change-feed and
// recomputes the denormalized active and history queues from them.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/smallbiznis/ordersync/internal/clock"
	"github.com/smallbiznis/ordersync/internal/config"
	kitchendomain "github.com/smallbiznis/ordersync/internal/kitchen/domain"
	"github.com/smallbiznis/ordersync/internal/normalize"
	"github.com/smallbiznis/ordersync/internal/observability/metrics"
	"github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/smallbiznis/ordersync/internal/realtime/feed"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrUnknownRelation = errors.New("unknown_relation")

// Source serves the bulk fetch used to hydrate a relation.
type Source interface {
	Fetch(ctx context.Context, relation normalize.Relation) ([]normalize.Row, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Normalizer *normalize.Normalizer
	Clock      clock.Clock
	Engine     *config.EngineConfigHolder `optional:"true"`
	Metrics    *metrics.EngineMetrics     `optional:"true"`
}

type Aggregator struct {
	log        *zap.Logger
	normalizer *normalize.Normalizer
	clock      clock.Clock
	engine     *config.EngineConfigHolder
	metrics    *metrics.EngineMetrics

	mu        sync.RWMutex
	relations map[normalize.Relation]map[string]normalize.Row
	states    map[normalize.Relation]RelationState

	signal chan struct{}

	recomputeMu sync.Mutex
	historySeq  map[string]int64
	seq         *clock.Sequence
	revision    uint64

	snapMu   sync.RWMutex
	snapshot Snapshot

	hub *hub
}

func New(p Params) *Aggregator {
	a := &Aggregator{
		log:        p.Log.Named("realtime.aggregator"),
		normalizer: p.Normalizer,
		clock:      p.Clock,
		engine:     p.Engine,
		metrics:    p.Metrics,
		relations:  make(map[normalize.Relation]map[string]normalize.Row),
		states:     make(map[normalize.Relation]RelationState),
		signal:     make(chan struct{}, 1),
		historySeq: make(map[string]int64),
		seq:        clock.NewSequence(),
		hub:        newHub(),
	}
	for _, rel := range normalize.Relations {
		a.states[rel] = Uninitialized
	}
	return a
}

// Apply replaces the relation's row map wholesale with rows and schedules a
// recomputation. The last batch applied wins.
func (a *Aggregator) Apply(relation string, rows []normalize.Row) error {
	rel := normalize.ResolveRelation(relation)
	if rel == normalize.RelationUnknown {
		return fmt.Errorf("%w: %s", ErrUnknownRelation, relation)
	}
	a.replace(rel, rows)
	a.schedule()
	return nil
}

func (a *Aggregator) replace(rel normalize.Relation, rows []normalize.Row) {
	next := make(map[string]normalize.Row, len(rows))
	for _, row := range rows {
		key := normalize.RowKey(rel, row)
		if key == "" {
			a.log.Debug("row without identity skipped", zap.String("relation", string(rel)))
			continue
		}
		next[key] = maps.Clone(row)
	}

	a.mu.Lock()
	a.relations[rel] = next
	a.states[rel] = Live
	a.mu.Unlock()

	a.metrics.RelationBatch(string(rel))
}

func (a *Aggregator) schedule() {
	select {
	case a.signal <- struct{}{}:
	default:
	}
}

// Hydrate bulk-loads every relation from src, then schedules one recomputation.
func (a *Aggregator) Hydrate(ctx context.Context, src Source) error {
	for _, rel := range normalize.Relations {
		a.setState(rel, Hydrating)
		rows, err := src.Fetch(ctx, rel)
		if err != nil {
			a.setState(rel, Uninitialized)
			return fmt.Errorf("hydrate %s: %w", rel, err)
		}
		a.replace(rel, rows)
	}
	a.schedule()
	return nil
}

// Attach watches every relation on f and applies each delivered batch.
func (a *Aggregator) Attach(ctx context.Context, f feed.Feed) error {
	for _, rel := range normalize.Relations {
		rel := rel
		err := f.Watch(ctx, rel, func(rows []normalize.Row) {
			a.replace(rel, rows)
			a.schedule()
		})
		if err != nil {
			return fmt.Errorf("watch %s: %w", rel, err)
		}
	}
	return nil
}

func (a *Aggregator) setState(rel normalize.Relation, state RelationState) {
	a.mu.Lock()
	a.states[rel] = state
	a.mu.Unlock()
}

func (a *Aggregator) State(relation string) RelationState {
	rel := normalize.ResolveRelation(relation)
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.states[rel]
}

// Run recomputes once per coalesced burst of batches until ctx is done.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.signal:
		}

		if window := a.engine.Get().CoalesceWindow; window > 0 {
			timer := time.NewTimer(window)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		select {
		case <-a.signal:
		default:
		}

		a.RecomputeNow()
	}
}

// RecomputeNow rebuilds the snapshot synchronously and publishes it.
func (a *Aggregator) RecomputeNow() Snapshot {
	a.recomputeMu.Lock()
	defer a.recomputeMu.Unlock()

	start := time.Now()
	a.mu.RLock()
	headers := a.relations[normalize.RelationOrders]
	lines := a.relations[normalize.RelationLines]
	payments := a.relations[normalize.RelationPayments]
	tables := a.relations[normalize.RelationTables]
	shifts := a.relations[normalize.RelationShifts]
	a.mu.RUnlock()

	linesByOrder := groupByOrder(lines)
	paymentsByOrder := groupByOrder(payments)

	ids := make([]string, 0, len(headers))
	for id := range headers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	a.revision++
	snap := Snapshot{
		Revision:   a.revision,
		ComputedAt: a.clock.Now(),
		Orders:     []domain.Order{},
		Active:     []domain.Order{},
		History:    []HistoryEntry{},
	}
	for _, id := range ids {
		header := headers[id]
		if normalize.HeaderExcluded(header) {
			continue
		}
		order, err := a.normalizer.FromRows(header, linesByOrder[id], paymentsByOrder[id])
		if err != nil {
			a.log.Warn("order header skipped", zap.String("order_id", id), zap.Error(err))
			continue
		}
		snap.Orders = append(snap.Orders, order)
		if Completed(order) {
			seq, ok := a.historySeq[order.ID]
			if !ok {
				seq = a.seq.Next()
				a.historySeq[order.ID] = seq
			}
			snap.History = append(snap.History, HistoryEntry{Seq: seq, Order: order.Clone()})
			continue
		}
		snap.Active = append(snap.Active, order.Clone())
	}
	for id := range a.historySeq {
		if _, ok := headers[id]; !ok {
			delete(a.historySeq, id)
		}
	}

	sortOrders(snap.Orders)
	sortOrders(snap.Active)
	sort.Slice(snap.History, func(i, j int) bool { return snap.History[i].Seq < snap.History[j].Seq })
	snap.Tables = tableStatuses(tables, snap.Active)
	snap.OpenShifts = openShifts(shifts)

	a.snapMu.Lock()
	a.snapshot = snap
	a.snapMu.Unlock()

	a.metrics.ObserveRecompute(time.Since(start))
	a.hub.publish(snap)
	return snap.Clone()
}

// Snapshot returns a deep copy of the latest recomputed view.
func (a *Aggregator) Snapshot() Snapshot {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.snapshot.Clone()
}

// Subscribe returns a subscription for future snapshots and the current one.
func (a *Aggregator) Subscribe() (*Subscription, Snapshot) {
	sub := a.hub.subscribe()
	return sub, a.Snapshot()
}

// KitchenKeys lists the lines of orderID that kitchen storage already holds.
func (a *Aggregator) KitchenKeys(orderID string) []kitchendomain.LineKey {
	a.mu.RLock()
	jobs := a.relations[normalize.RelationJobs]
	a.mu.RUnlock()

	seen := make(map[string]struct{})
	var keys []kitchendomain.LineKey
	for _, row := range jobs {
		owner, lineIDs := normalize.JobLines(row)
		if owner != orderID {
			continue
		}
		for _, id := range lineIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			keys = append(keys, kitchendomain.LineKey{OrderID: orderID, LineID: id})
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].LineID < keys[j].LineID })
	return keys
}

func groupByOrder(rows map[string]normalize.Row) map[string][]normalize.Row {
	keys := make([]string, 0, len(rows))
	for key := range rows {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string][]normalize.Row)
	for _, key := range keys {
		row := rows[key]
		orderID := normalize.OrderIDOf(row)
		if orderID == "" {
			continue
		}
		out[orderID] = append(out[orderID], row)
	}
	return out
}

func sortOrders(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}

func tableStatuses(rows map[string]normalize.Row, active []domain.Order) []TableStatus {
	occupied := make(map[string][]string)
	for _, o := range active {
		for _, table := range o.Tables {
			occupied[table] = append(occupied[table], o.ID)
		}
	}
	out := make([]TableStatus, 0, len(rows))
	for _, row := range rows {
		id, name := normalize.TableOf(row)
		out = append(out, TableStatus{ID: id, Name: name, OrderIDs: occupied[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func openShifts(rows map[string]normalize.Row) []string {
	var out []string
	for _, row := range rows {
		if id, open := normalize.ShiftOf(row); open {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
