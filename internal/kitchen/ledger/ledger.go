// Package ledger records which order lines have been handed to the kitchen
// so a retried save never dispatches the same line twice.
package ledger

import (
	"context"
	"sort"
	"sync"

	kitchendomain "github.com/smallbiznis/ordersync/internal/kitchen/domain"
	"github.com/smallbiznis/ordersync/internal/localstore"
	orderdomain "github.com/smallbiznis/ordersync/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const namespace = "kitchen_ledger"

type entry struct {
	OrderID string   `json:"order_id"`
	LineIDs []string `json:"line_ids"`
}

type Params struct {
	fx.In

	Log   *zap.Logger
	Store localstore.Store `optional:"true"`
}

type Ledger struct {
	log   *zap.Logger
	store localstore.Store

	mu      sync.Mutex
	byOrder map[string]map[string]struct{}
}

func New(p Params) *Ledger {
	store := p.Store
	if store == nil {
		store = localstore.Noop{}
	}
	l := &Ledger{
		log:     p.Log.Named("kitchen.ledger"),
		store:   store,
		byOrder: make(map[string]map[string]struct{}),
	}
	l.load(context.Background())
	return l
}

func (l *Ledger) load(ctx context.Context) {
	if !l.store.Available() {
		return
	}
	records, err := l.store.List(ctx, namespace)
	if err != nil {
		l.log.Warn("ledger load failed", zap.Error(err))
		return
	}
	for _, rec := range records {
		var e entry
		if _, err := l.store.Get(ctx, namespace, rec.Key, &e); err != nil {
			l.log.Warn("ledger entry skipped", zap.String("order_id", rec.Key), zap.Error(err))
			continue
		}
		lines := l.lines(e.OrderID)
		for _, id := range e.LineIDs {
			lines[id] = struct{}{}
		}
	}
}

// lines returns the line set for orderID. Callers hold mu or run during load.
func (l *Ledger) lines(orderID string) map[string]struct{} {
	set, ok := l.byOrder[orderID]
	if !ok {
		set = make(map[string]struct{})
		l.byOrder[orderID] = set
	}
	return set
}

func (l *Ledger) Seen(key kitchendomain.LineKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.byOrder[key.OrderID][key.LineID]
	return ok
}

// Filter returns the lines of orderID that still need to go to the kitchen.
// Lines already marked, listed in known, past the queued status, or with no
// item identifier are excluded.
func (l *Ledger) Filter(orderID string, lines []orderdomain.Line, known ...kitchendomain.LineKey) []orderdomain.Line {
	skip := make(map[string]struct{}, len(known))
	for _, k := range known {
		if k.OrderID == orderID {
			skip[k.LineID] = struct{}{}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	sent := l.byOrder[orderID]

	var out []orderdomain.Line
	for _, line := range lines {
		if line.ItemID == "" || line.Status.InKitchen() {
			continue
		}
		if _, ok := skip[line.ID]; ok {
			continue
		}
		if _, ok := sent[line.ID]; ok {
			continue
		}
		out = append(out, line.Clone())
	}
	return out
}

// Mark records keys as dispatched. Memory is updated before persistence, so
// a persistence failure never allows a second dispatch in this process.
func (l *Ledger) Mark(ctx context.Context, keys []kitchendomain.LineKey) error {
	if len(keys) == 0 {
		return nil
	}

	touched := make(map[string]entry)
	l.mu.Lock()
	for _, k := range keys {
		l.lines(k.OrderID)[k.LineID] = struct{}{}
	}
	for _, k := range keys {
		if _, ok := touched[k.OrderID]; ok {
			continue
		}
		ids := make([]string, 0, len(l.byOrder[k.OrderID]))
		for id := range l.byOrder[k.OrderID] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		touched[k.OrderID] = entry{OrderID: k.OrderID, LineIDs: ids}
	}
	l.mu.Unlock()

	for orderID, e := range touched {
		if err := l.store.Put(ctx, namespace, orderID, e); err != nil {
			l.log.Warn("ledger persist failed", zap.String("order_id", orderID), zap.Error(err))
			return err
		}
	}
	return nil
}
