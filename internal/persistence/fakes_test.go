package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	kitchendomain "github.com/smallbiznis/ordersync/internal/kitchen/domain"
	"github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/stretchr/testify/mock"
)

// memoryRemote is a version-checked in-memory order store.
type memoryRemote struct {
	mu      sync.Mutex
	orders  map[string]domain.Order
	seq     int
	collide int
	failGet int
	saves   int

	entered chan struct{}
	release chan struct{}
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{orders: make(map[string]domain.Order)}
}

func (r *memoryRemote) ListOrders(_ context.Context, filter domain.ListFilter) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if filter.ShiftID != "" && o.ShiftID != filter.ShiftID {
			continue
		}
		out = append(out, o.Clone())
	}
	return out, nil
}

func (r *memoryRemote) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet > 0 {
		r.failGet--
		return nil, &domain.TransientError{Op: "get_order", Err: errors.New("timeout")}
	}
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	clone := o.Clone()
	return &clone, nil
}

func (r *memoryRemote) SaveOrder(_ context.Context, req domain.SaveRequest) (domain.Order, error) {
	if r.entered != nil {
		r.entered <- struct{}{}
		<-r.release
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++

	o := req.Order.Clone()
	if req.Insert {
		if _, exists := r.orders[o.ID]; exists {
			return domain.Order{}, domain.ErrIDCollision
		}
		o.State = domain.Saved{Version: 1}
		r.orders[o.ID] = o
		return o.Clone(), nil
	}

	current, ok := r.orders[o.ID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	if current.Version() != req.ExpectedVersion {
		remote := current.Clone()
		return domain.Order{}, &domain.ConflictError{OrderID: o.ID, ExpectedVersion: req.ExpectedVersion, Remote: &remote}
	}
	next := current.Version() + 1
	if o.Status == domain.StatusFinalized {
		o.State = domain.Finalized{Version: next}
	} else {
		o.State = domain.Saved{Version: next}
	}
	r.orders[o.ID] = o
	return o.Clone(), nil
}

func (r *memoryRemote) NextInvoiceNumber(_ context.Context, posID string) (domain.InvoiceNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := fmt.Sprintf("ORD%03d", r.seq)
	if r.collide > 0 {
		r.collide--
		id = "ORD-TAKEN"
	}
	return domain.InvoiceNumber{Value: fmt.Sprintf("INV/%s/%s", posID, id), ID: id}, nil
}

func (r *memoryRemote) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// kitchenRecorder stands in for the kitchen display: it keeps every job
// published and reports their line keys back, like the jobs relation does.
type kitchenRecorder struct {
	mu     sync.Mutex
	jobs   []kitchendomain.Job
	orders []domain.Order
}

func (k *kitchenRecorder) PublishOrder(_ context.Context, order domain.Order) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.orders = append(k.orders, order.Clone())
	return nil
}

func (k *kitchenRecorder) PublishJobUpdate(_ context.Context, job kitchendomain.Job) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.jobs = append(k.jobs, job)
	return nil
}

func (k *kitchenRecorder) KitchenKeys(orderID string) []kitchendomain.LineKey {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []kitchendomain.LineKey
	for _, job := range k.jobs {
		if job.OrderID == orderID {
			out = append(out, job.LineKeys()...)
		}
	}
	return out
}

func (k *kitchenRecorder) dispatched() map[kitchendomain.LineKey]int {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[kitchendomain.LineKey]int)
	for _, job := range k.jobs {
		for _, key := range job.LineKeys() {
			out[key]++
		}
	}
	return out
}

func (k *kitchenRecorder) jobCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.jobs)
}

type fixedShift struct {
	mu       sync.Mutex
	id       string
	attached []string
}

func (s *fixedShift) CurrentShiftID(string) (string, bool) {
	return s.id, s.id != ""
}

func (s *fixedShift) Attach(_ context.Context, _ string, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = append(s.attached, orderID)
	return nil
}

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) ListOrders(ctx context.Context, filter domain.ListFilter) ([]domain.Order, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *mockRemote) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*domain.Order)
	return o, args.Error(1)
}

func (m *mockRemote) SaveOrder(ctx context.Context, req domain.SaveRequest) (domain.Order, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Order), args.Error(1)
}

func (m *mockRemote) NextInvoiceNumber(ctx context.Context, posID string) (domain.InvoiceNumber, error) {
	args := m.Called(ctx, posID)
	return args.Get(0).(domain.InvoiceNumber), args.Error(1)
}
