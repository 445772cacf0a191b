package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ordersync/internal/clock"
	"github.com/smallbiznis/ordersync/internal/config"
	kitchendomain "github.com/smallbiznis/ordersync/internal/kitchen/domain"
	"github.com/smallbiznis/ordersync/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errConnClosed = errors.New("conn closed")

type fakeTransport struct {
	mu       sync.Mutex
	failures int
	dials    int
	secret   string
	silent   bool
	conns    []*fakeConn
}

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) Dial(context.Context) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.failures > 0 {
		t.failures--
		return nil, errors.New("dial refused")
	}
	conn := &fakeConn{
		secret: t.secret,
		silent: t.silent,
		inbox:  make(chan Envelope, 32),
		closed: make(chan struct{}),
	}
	t.conns = append(t.conns, conn)
	return conn, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.conns) {
		return nil
	}
	return t.conns[i]
}

func (t *fakeTransport) failNext(n int) {
	t.mu.Lock()
	t.failures = n
	t.mu.Unlock()
}

type fakeConn struct {
	secret string
	silent bool

	mu     sync.Mutex
	sent   []Envelope
	inbox  chan Envelope
	closed chan struct{}
	once   sync.Once
}

func (c *fakeConn) Send(_ context.Context, env Envelope) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, env)
	c.mu.Unlock()

	switch env.Type {
	case FrameAuth:
		if _, err := ParseToken(c.secret, env.Token); err != nil {
			c.inbox <- Failure(FrameAuth, "unauthorized", time.Now())
			return nil
		}
		c.inbox <- Ack(FrameAuth, "", time.Now())
	case FramePing:
		if !c.silent {
			c.inbox <- Pong(time.Now())
		}
	}
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (Envelope, error) {
	select {
	case env := <-c.inbox:
		return env, nil
	case <-c.closed:
		return Envelope{}, errConnClosed
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) frames(kind FrameType) []Envelope {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Envelope
	for _, env := range c.sent {
		if env.Type == kind {
			out = append(out, env)
		}
	}
	return out
}

func newTestBridge(t *testing.T, tr Transport, secret string, mutate func(*config.KitchenTuning)) *Bridge {
	t.Helper()
	engine := config.DefaultEngineConfig()
	engine.Kitchen.RetryInterval = 5 * time.Millisecond
	engine.Kitchen.HeartbeatInterval = time.Hour
	engine.Kitchen.PongTimeout = time.Second
	if mutate != nil {
		mutate(&engine.Kitchen)
	}
	return New(Params{
		Log:    zap.NewNop(),
		Clock:  clock.NewSystemClock(),
		Engine: config.NewStaticEngineConfigHolder(engine),
		Config: config.Config{
			PosID: "pos-1",
			Kitchen: config.KitchenConfig{
				TopicPrefix: "kds",
				AuthSecret:  secret,
				AuthTTL:     time.Hour,
			},
		},
		Transport: tr,
		Metrics:   metrics.NewNop(),
	})
}

func start(t *testing.T, b *Bridge) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})
	return cancel, done
}

func job(id int64, status kitchendomain.JobStatus) kitchendomain.Job {
	return kitchendomain.Job{
		ID:        snowflake.ID(id),
		OrderID:   "1001",
		StationID: "grill",
		Status:    status,
	}
}

func decodeJob(t *testing.T, env Envelope) kitchendomain.Job {
	t.Helper()
	var out kitchendomain.Job
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestQueuedJobUpdatesFlushInOrder(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, "", nil)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, b.PublishJobUpdate(ctx, job(i, kitchendomain.JobQueued)))
	}
	assert.Equal(t, 3, b.QueueLen())
	assert.Equal(t, Disconnected, b.State())

	start(t, b)

	require.Eventually(t, func() bool {
		return b.State() == Subscribed && len(tr.conn(0).frames(FramePublish)) == 3
	}, time.Second, 5*time.Millisecond)

	published := tr.conn(0).frames(FramePublish)
	for i, env := range published {
		assert.Equal(t, "kds.jobs", env.Topic)
		assert.Equal(t, snowflake.ID(i+1), decodeJob(t, env).ID)
	}
	assert.Equal(t, 0, b.QueueLen())

	require.NoError(t, b.PublishJobUpdate(ctx, job(4, kitchendomain.JobQueued)))
	assert.Len(t, tr.conn(0).frames(FramePublish), 4)
	assert.Equal(t, 1, tr.dialCount())
}

func TestQueueReplacesSameKeyInPlace(t *testing.T) {
	b := newTestBridge(t, &fakeTransport{}, "", nil)
	ctx := context.Background()

	first := job(1, kitchendomain.JobQueued)
	require.NoError(t, b.PublishJobUpdate(ctx, first))
	require.NoError(t, b.PublishJobUpdate(ctx, job(2, kitchendomain.JobQueued)))

	updated := first
	updated.InvoiceNumber = "INV-9"
	require.NoError(t, b.PublishJobUpdate(ctx, updated))

	require.Equal(t, 2, b.QueueLen())
	b.mu.Lock()
	head := b.queue[0].env
	b.mu.Unlock()
	assert.Equal(t, "INV-9", decodeJob(t, head).InvoiceNumber)
}

func TestQueueDropsOldestPastCapacity(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, "", func(k *config.KitchenTuning) { k.QueueCapacity = 2 })
	ctx := context.Background()

	for _, status := range []string{"assigned", "picked_up", "delivered"} {
		require.NoError(t, b.PublishDeliveryUpdate(ctx, kitchendomain.DeliveryUpdate{OrderID: "1001", Status: status}))
	}
	require.Equal(t, 2, b.QueueLen())

	start(t, b)
	require.Eventually(t, func() bool {
		return len(tr.conn(0).frames(FramePublish)) == 2
	}, time.Second, 5*time.Millisecond)

	var statuses []string
	for _, env := range tr.conn(0).frames(FramePublish) {
		var u kitchendomain.DeliveryUpdate
		require.NoError(t, json.Unmarshal(env.Data, &u))
		statuses = append(statuses, u.Status)
	}
	assert.Equal(t, []string{"picked_up", "delivered"}, statuses)
}

func TestReconnectFlushesMessagesPublishedWhileDown(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, "", func(k *config.KitchenTuning) { k.RetryInterval = 50 * time.Millisecond })
	start(t, b)

	require.Eventually(t, func() bool { return b.State() == Subscribed }, time.Second, 5*time.Millisecond)
	require.NoError(t, tr.conn(0).Close())
	require.Eventually(t, func() bool { return b.State() != Subscribed }, time.Second, time.Millisecond)

	require.NoError(t, b.PublishHandoffUpdate(context.Background(), kitchendomain.HandoffUpdate{
		OrderID:   "1001",
		StationID: "grill",
		Status:    kitchendomain.JobReady,
	}))

	require.Eventually(t, func() bool {
		return len(tr.conn(1).frames(FramePublish)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "kds.handoff", tr.conn(1).frames(FramePublish)[0].Topic)
	assert.Equal(t, 0, b.QueueLen())
}

func TestAttemptsResetAfterSuccessfulOpen(t *testing.T) {
	tr := &fakeTransport{failures: 2}
	b := newTestBridge(t, tr, "", func(k *config.KitchenTuning) { k.MaxAttempts = 3 })
	_, done := start(t, b)

	require.Eventually(t, func() bool { return b.State() == Subscribed }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, tr.dialCount())

	tr.failNext(1)
	require.NoError(t, tr.conn(0).Close())

	require.Eventually(t, func() bool {
		return tr.conn(1) != nil && b.State() == Subscribed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, tr.dialCount())

	select {
	case err := <-done:
		t.Fatalf("bridge stopped early: %v", err)
	default:
	}
}

func TestRunStopsAfterMaxAttempts(t *testing.T) {
	tr := &fakeTransport{failures: 100}
	b := newTestBridge(t, tr, "", func(k *config.KitchenTuning) { k.MaxAttempts = 3 })
	_, done := start(t, b)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRetriesExhausted)
	case <-time.After(time.Second):
		t.Fatal("bridge did not give up")
	}
	assert.Equal(t, 3, tr.dialCount())
	assert.Equal(t, Disconnected, b.State())
}

func TestLocalFallbackWhileDisconnected(t *testing.T) {
	b := newTestBridge(t, &fakeTransport{}, "", nil)
	sub, recent := b.Local().Subscribe(TopicJobs)
	defer sub.Close()
	assert.Empty(t, recent)

	require.NoError(t, b.PublishJobUpdate(context.Background(), job(7, kitchendomain.JobPreparing)))

	select {
	case env := <-sub.Events():
		assert.Equal(t, snowflake.ID(7), decodeJob(t, env).ID)
	case <-time.After(time.Second):
		t.Fatal("local subscriber did not receive update")
	}
	assert.Equal(t, 1, b.QueueLen())
}

func TestNoTransportBroadcastsLocallyOnly(t *testing.T) {
	b := newTestBridge(t, nil, "", nil)
	sub, _ := b.Local().Subscribe(TopicDelivery)
	defer sub.Close()

	require.NoError(t, b.PublishDeliveryUpdate(context.Background(), kitchendomain.DeliveryUpdate{OrderID: "1001", Status: "assigned"}))

	select {
	case env := <-sub.Events():
		assert.Equal(t, "delivery.update", env.Event)
	case <-time.After(time.Second):
		t.Fatal("no local broadcast")
	}
	assert.Equal(t, 0, b.QueueLen())
}

func TestAuthHandshake(t *testing.T) {
	tr := &fakeTransport{secret: "s3cret"}
	b := newTestBridge(t, tr, "s3cret", nil)
	start(t, b)

	require.Eventually(t, func() bool { return b.State() == Subscribed }, time.Second, 5*time.Millisecond)

	auth := tr.conn(0).frames(FrameAuth)
	require.Len(t, auth, 1)
	claims, err := ParseToken("s3cret", auth[0].Token)
	require.NoError(t, err)
	assert.Equal(t, "pos-1", claims.PosID)
}

func TestAuthRejectedCountsAsFailedAttempt(t *testing.T) {
	tr := &fakeTransport{secret: "server-secret"}
	b := newTestBridge(t, tr, "wrong", func(k *config.KitchenTuning) { k.MaxAttempts = 2 })
	_, done := start(t, b)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRetriesExhausted)
	case <-time.After(time.Second):
		t.Fatal("bridge did not give up")
	}
	assert.Equal(t, 2, tr.dialCount())
}

func TestInboundMessagesReachHandlers(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, "", nil)

	got := make(chan Envelope, 1)
	unsubscribe := b.Subscribe(TopicJobs, func(env Envelope) { got <- env })
	defer unsubscribe()

	start(t, b)
	require.Eventually(t, func() bool { return b.State() == Subscribed }, time.Second, 5*time.Millisecond)

	subs := tr.conn(0).frames(FrameSubscribe)
	require.Len(t, subs, 1)
	assert.Equal(t, "kds.jobs", subs[0].Topic)

	tr.conn(0).inbox <- Envelope{Type: FramePublish, Topic: "kds.jobs", Event: "job.update"}
	select {
	case env := <-got:
		assert.Equal(t, "job.update", env.Event)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestMissingPongForcesReconnect(t *testing.T) {
	tr := &fakeTransport{silent: true}
	b := newTestBridge(t, tr, "", func(k *config.KitchenTuning) {
		k.HeartbeatInterval = 10 * time.Millisecond
		k.PongTimeout = 10 * time.Millisecond
		k.MaxAttempts = 100
	})
	start(t, b)

	require.Eventually(t, func() bool { return tr.dialCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken("a", "pos-1", time.Minute, time.Now())
	require.NoError(t, err)

	_, err = ParseToken("b", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
