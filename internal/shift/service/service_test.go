package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ordersync/internal/clock"
	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/localstore"
	orderdomain "github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/smallbiznis/ordersync/internal/shift/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubRemote struct {
	mu     sync.Mutex
	orders []orderdomain.Order
	lists  int

	// entered and release hold ListOrders open when set.
	entered chan struct{}
	release chan struct{}
}

func (r *stubRemote) ListOrders(_ context.Context, filter orderdomain.ListFilter) ([]orderdomain.Order, error) {
	if r.release != nil {
		r.entered <- struct{}{}
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	var out []orderdomain.Order
	for _, o := range r.orders {
		if filter.ShiftID == "" || o.ShiftID == filter.ShiftID {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (r *stubRemote) GetOrder(context.Context, string) (*orderdomain.Order, error) { return nil, nil }

func (r *stubRemote) SaveOrder(_ context.Context, req orderdomain.SaveRequest) (orderdomain.Order, error) {
	return req.Order, nil
}

func (r *stubRemote) NextInvoiceNumber(context.Context, string) (orderdomain.InvoiceNumber, error) {
	return orderdomain.InvoiceNumber{}, nil
}

func (r *stubRemote) add(o orderdomain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
}

func newService(t *testing.T, remote *stubRemote, store localstore.Store) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(Params{
		Log:    zap.NewNop(),
		Config: config.Config{PosID: "pos-1"},
		Clock:  clock.NewFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)),
		GenID:  node,
		Remote: remote,
		Store:  store,
	})
}

func paidOrder(id, shiftID, due string) orderdomain.Order {
	amount := decimal.RequireFromString(due)
	return orderdomain.Order{
		ID:       id,
		ShiftID:  shiftID,
		Type:     orderdomain.OrderTypeDineIn,
		Status:   orderdomain.StatusFinalized,
		Totals:   orderdomain.Totals{Due: amount},
		Payments: []orderdomain.Payment{{MethodID: "cash", Amount: amount}},
		State:    orderdomain.Finalized{Version: 3},
	}
}

func TestOpenOneShiftPerTerminal(t *testing.T) {
	svc := newService(t, &stubRemote{}, nil)

	sh, err := svc.Open(context.Background(), "", "cashier-1", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "pos-1", sh.PosID)
	assert.Equal(t, domain.StatusOpen, sh.Status)

	_, err = svc.Open(context.Background(), "pos-1", "cashier-2", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrShiftAlreadyOpen)

	id, ok := svc.CurrentShiftID("pos-1")
	assert.True(t, ok)
	assert.Equal(t, sh.ID, id)
}

func TestOpenRejectsBadInput(t *testing.T) {
	svc := newService(t, &stubRemote{}, nil)

	_, err := svc.Open(context.Background(), "pos-1", " ", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidCashier)

	_, err = svc.Open(context.Background(), "pos-1", "cashier-1", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, domain.ErrInvalidFloat)
}

func TestCloseFreezesSummary(t *testing.T) {
	remote := &stubRemote{}
	svc := newService(t, remote, nil)
	ctx := context.Background()

	sh, err := svc.Open(ctx, "pos-1", "cashier-1", decimal.NewFromInt(50))
	require.NoError(t, err)
	remote.add(paidOrder("ORD001", sh.ID, "20.00"))
	require.NoError(t, svc.Attach(ctx, sh.ID, "ORD001"))

	closed, err := svc.Close(ctx, sh.ID, decimal.NewFromInt(70))
	require.NoError(t, err)
	require.NotNil(t, closed.Summary)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)
	assert.Equal(t, []string{"ORD001"}, closed.OrderIDs)
	assert.Equal(t, "20.00", closed.Summary.TotalSales.StringFixed(2))
	assert.True(t, closed.Summary.CashVariance.IsZero())

	_, ok := svc.CurrentShiftID("pos-1")
	assert.False(t, ok)

	// orders landing after close do not change the frozen summary
	remote.add(paidOrder("ORD002", sh.ID, "5.00"))
	summary, err := svc.Summarize(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OrdersCount)

	_, err = svc.Close(ctx, sh.ID, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrShiftClosed)
	assert.ErrorIs(t, svc.Attach(ctx, sh.ID, "ORD002"), domain.ErrShiftClosed)
}

func TestCloseBlocksAttachWhileClosing(t *testing.T) {
	remote := &stubRemote{}
	svc := newService(t, remote, nil)
	ctx := context.Background()

	sh, err := svc.Open(ctx, "", "cashier-1", decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, svc.Attach(ctx, sh.ID, "ORD001"))

	remote.entered = make(chan struct{})
	remote.release = make(chan struct{})

	type result struct {
		shift domain.Shift
		err   error
	}
	done := make(chan result, 1)
	go func() {
		closed, err := svc.Close(ctx, sh.ID, decimal.Zero)
		done <- result{closed, err}
	}()
	<-remote.entered

	_, ok := svc.CurrentShiftID("")
	assert.False(t, ok)
	assert.ErrorIs(t, svc.Attach(ctx, sh.ID, "ORD-LATE"), domain.ErrShiftClosed)

	close(remote.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, []string{"ORD001"}, res.shift.OrderIDs)

	stored, err := svc.Get(sh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, stored.Status)
	assert.Equal(t, []string{"ORD001"}, stored.OrderIDs)
}

func TestSummarizeOpenShiftIsLive(t *testing.T) {
	remote := &stubRemote{}
	svc := newService(t, remote, nil)
	ctx := context.Background()

	sh, err := svc.Open(ctx, "pos-1", "cashier-1", decimal.Zero)
	require.NoError(t, err)
	remote.add(paidOrder("ORD001", sh.ID, "12.50"))

	summary, err := svc.Summarize(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.50", summary.TotalSales.StringFixed(2))

	_, err = svc.Summarize(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrShiftNotFound)
}

func TestAttachIsIdempotent(t *testing.T) {
	svc := newService(t, &stubRemote{}, nil)
	ctx := context.Background()

	sh, err := svc.Open(ctx, "pos-1", "cashier-1", decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, svc.Attach(ctx, sh.ID, "ORD001"))
	require.NoError(t, svc.Attach(ctx, sh.ID, "ORD001"))

	got, err := svc.Get(sh.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ORD001"}, got.OrderIDs)
}

func TestShiftsSurviveRestart(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:shift_service?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	store, err := localstore.NewGormStore(conn, zap.NewNop(), nil)
	require.NoError(t, err)

	first := newService(t, &stubRemote{}, store)
	sh, err := first.Open(context.Background(), "pos-1", "cashier-1", decimal.NewFromInt(25))
	require.NoError(t, err)
	require.NoError(t, first.Attach(context.Background(), sh.ID, "ORD001"))

	second := newService(t, &stubRemote{}, store)
	current, ok := second.Current("pos-1")
	require.True(t, ok)
	assert.Equal(t, sh.ID, current.ID)
	assert.Equal(t, []string{"ORD001"}, current.OrderIDs)
	assert.Equal(t, "25.00", current.OpeningFloat.StringFixed(2))
}
