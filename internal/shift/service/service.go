package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ordersync/internal/clock"
	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/localstore"
	orderdomain "github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/smallbiznis/ordersync/internal/pricing"
	"github.com/smallbiznis/ordersync/internal/shift/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const namespace = "shift"

type Params struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Clock  clock.Clock
	GenID  *snowflake.Node
	Remote orderdomain.RemoteStore
	Store  localstore.Store `optional:"true"`
}

type Service struct {
	log    *zap.Logger
	posID  string
	clock  clock.Clock
	genID  *snowflake.Node
	remote orderdomain.RemoteStore
	store  localstore.Store

	mu      sync.Mutex
	shifts  map[string]*domain.Shift
	current map[string]string
	closing map[string]struct{}
}

func New(p Params) *Service {
	store := p.Store
	if store == nil {
		store = localstore.Noop{}
	}
	s := &Service{
		log:     p.Log.Named("shift.service"),
		posID:   p.Config.PosID,
		clock:   p.Clock,
		genID:   p.GenID,
		remote:  p.Remote,
		store:   store,
		shifts:  make(map[string]*domain.Shift),
		current: make(map[string]string),
		closing: make(map[string]struct{}),
	}
	s.load(context.Background())
	return s
}

func (s *Service) load(ctx context.Context) {
	if !s.store.Available() {
		return
	}
	records, err := s.store.List(ctx, namespace)
	if err != nil {
		s.log.Warn("shift load failed", zap.Error(err))
		return
	}
	for _, rec := range records {
		var sh domain.Shift
		if _, err := s.store.Get(ctx, namespace, rec.Key, &sh); err != nil {
			s.log.Warn("shift record skipped", zap.String("shift_id", rec.Key), zap.Error(err))
			continue
		}
		s.shifts[sh.ID] = &sh
		if sh.IsOpen() {
			s.current[sh.PosID] = sh.ID
		}
	}
}

// Open starts a shift for cashierID on posID. A terminal holds at most one
// open shift.
func (s *Service) Open(ctx context.Context, posID, cashierID string, openingFloat decimal.Decimal) (domain.Shift, error) {
	posID = s.pos(posID)
	cashierID = strings.TrimSpace(cashierID)
	if cashierID == "" {
		return domain.Shift{}, domain.ErrInvalidCashier
	}
	if openingFloat.IsNegative() {
		return domain.Shift{}, domain.ErrInvalidFloat
	}

	s.mu.Lock()
	if id, ok := s.current[posID]; ok {
		s.mu.Unlock()
		return domain.Shift{}, fmt.Errorf("%w: %s", domain.ErrShiftAlreadyOpen, id)
	}
	sh := &domain.Shift{
		ID:           s.genID.Generate().String(),
		PosID:        posID,
		CashierID:    cashierID,
		Status:       domain.StatusOpen,
		OpenedAt:     s.clock.Now(),
		OpeningFloat: pricing.Round(openingFloat),
		ClosingCash:  decimal.Zero,
	}
	s.shifts[sh.ID] = sh
	s.current[posID] = sh.ID
	out := sh.Clone()
	s.mu.Unlock()

	s.persist(ctx, out)
	s.log.Info("shift opened",
		zap.String("shift_id", out.ID),
		zap.String("pos_id", posID),
		zap.String("cashier_id", cashierID),
	)
	return out, nil
}

// Close freezes the shift summary from the saved orders of the shift. A
// closed shift is never reopened.
func (s *Service) Close(ctx context.Context, shiftID string, closingCash decimal.Decimal) (domain.Shift, error) {
	s.mu.Lock()
	sh, ok := s.shifts[shiftID]
	if !ok {
		s.mu.Unlock()
		return domain.Shift{}, domain.ErrShiftNotFound
	}
	if !sh.IsOpen() {
		s.mu.Unlock()
		return domain.Shift{}, domain.ErrShiftClosed
	}
	if _, busy := s.closing[shiftID]; busy {
		s.mu.Unlock()
		return domain.Shift{}, domain.ErrShiftClosed
	}
	s.closing[shiftID] = struct{}{}
	snapshot := sh.Clone()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.closing, shiftID)
		s.mu.Unlock()
	}()

	orders, err := s.remote.ListOrders(ctx, orderdomain.ListFilter{PosID: snapshot.PosID, ShiftID: shiftID})
	if err != nil {
		return domain.Shift{}, fmt.Errorf("list shift orders: %w", err)
	}

	closedAt := s.clock.Now()
	snapshot.Status = domain.StatusClosed
	snapshot.ClosedAt = &closedAt
	snapshot.ClosingCash = pricing.Round(closingCash)
	snapshot.OrderIDs = mergeIDs(snapshot.OrderIDs, orders, shiftID)
	summary := domain.Summarize(orders, snapshot)
	snapshot.Summary = &summary

	s.mu.Lock()
	if live, ok := s.shifts[shiftID]; ok {
		snapshot.OrderIDs = mergeIDs(append(snapshot.OrderIDs, live.OrderIDs...), nil, shiftID)
	}
	stored := snapshot.Clone()
	s.shifts[shiftID] = &stored
	if s.current[snapshot.PosID] == shiftID {
		delete(s.current, snapshot.PosID)
	}
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	s.log.Info("shift closed",
		zap.String("shift_id", shiftID),
		zap.Int("orders", summary.OrdersCount),
		zap.String("total_sales", summary.TotalSales.StringFixed(2)),
		zap.String("cash_variance", summary.CashVariance.StringFixed(2)),
	)
	return snapshot, nil
}

// Current returns the open shift of posID.
func (s *Service) Current(posID string) (domain.Shift, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.current[s.pos(posID)]
	if !ok {
		return domain.Shift{}, false
	}
	return s.shifts[id].Clone(), true
}

func (s *Service) CurrentShiftID(posID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.current[s.pos(posID)]
	if !ok {
		return "", false
	}
	if _, busy := s.closing[id]; busy {
		return "", false
	}
	return id, true
}

func (s *Service) Get(shiftID string) (domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shifts[shiftID]
	if !ok {
		return domain.Shift{}, domain.ErrShiftNotFound
	}
	return sh.Clone(), nil
}

// Attach records orderID on an open shift. Repeated attaches are no-ops. A
// shift that is being closed takes no more orders.
func (s *Service) Attach(ctx context.Context, shiftID, orderID string) error {
	s.mu.Lock()
	sh, ok := s.shifts[shiftID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrShiftNotFound
	}
	_, busy := s.closing[shiftID]
	if !sh.IsOpen() || busy {
		s.mu.Unlock()
		return domain.ErrShiftClosed
	}
	for _, id := range sh.OrderIDs {
		if id == orderID {
			s.mu.Unlock()
			return nil
		}
	}
	sh.OrderIDs = append(sh.OrderIDs, orderID)
	out := sh.Clone()
	s.mu.Unlock()

	s.persist(ctx, out)
	return nil
}

// Summarize returns the frozen summary of a closed shift, or a live fold of
// the remote orders of an open one.
func (s *Service) Summarize(ctx context.Context, shiftID string) (domain.Summary, error) {
	sh, err := s.Get(shiftID)
	if err != nil {
		return domain.Summary{}, err
	}
	if sh.Summary != nil {
		return sh.Summary.Clone(), nil
	}
	orders, err := s.remote.ListOrders(ctx, orderdomain.ListFilter{PosID: sh.PosID, ShiftID: shiftID})
	if err != nil {
		return domain.Summary{}, fmt.Errorf("list shift orders: %w", err)
	}
	return domain.Summarize(orders, sh), nil
}

func (s *Service) pos(posID string) string {
	posID = strings.TrimSpace(posID)
	if posID == "" {
		return s.posID
	}
	return posID
}

func (s *Service) persist(ctx context.Context, sh domain.Shift) {
	if !s.store.Available() {
		return
	}
	if err := s.store.Put(ctx, namespace, sh.ID, sh); err != nil {
		s.log.Warn("shift not persisted", zap.String("shift_id", sh.ID), zap.Error(err))
	}
}

func mergeIDs(known []string, orders []orderdomain.Order, shiftID string) []string {
	set := make(map[string]struct{}, len(known)+len(orders))
	for _, id := range known {
		set[id] = struct{}{}
	}
	for _, o := range orders {
		if o.ShiftID == shiftID && o.IsPersisted() {
			set[o.ID] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
