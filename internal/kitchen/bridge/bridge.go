package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/ordersync/internal/clock"
	"github.com/smallbiznis/ordersync/internal/config"
	kitchendomain "github.com/smallbiznis/ordersync/internal/kitchen/domain"
	"github.com/smallbiznis/ordersync/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/ordersync/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrRetriesExhausted = errors.New("kitchen_retries_exhausted")
	ErrHeartbeatTimeout = errors.New("kitchen_heartbeat_timeout")
	ErrAuthRejected     = errors.New("kitchen_auth_rejected")
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Subscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

const (
	TopicOrders   = "orders"
	TopicJobs     = "jobs"
	TopicDelivery = "delivery"
	TopicHandoff  = "handoff"
)

const (
	pathDirect = "direct"
	pathQueued = "queued"
	pathLocal  = "local"
)

// Handler receives inbound publish frames for a subscribed topic.
type Handler func(env Envelope)

type Params struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	Clock     clock.Clock
	Transport Transport                  `optional:"true"`
	Engine    *config.EngineConfigHolder `optional:"true"`
	Metrics   *metrics.EngineMetrics     `optional:"true"`
	Local     *LocalBroadcaster          `optional:"true"`
}

// Bridge keeps one duplex connection to the kitchen display alive and
// delivers publishes over it, queueing them while the connection is down.
type Bridge struct {
	log       *zap.Logger
	transport Transport
	engine    *config.EngineConfigHolder
	kitchen   config.KitchenConfig
	posID     string
	clock     clock.Clock
	metrics   *metrics.EngineMetrics
	local     *LocalBroadcaster

	// sendMu serializes writes so a flush and later publishes keep FIFO order.
	sendMu sync.Mutex

	mu       sync.Mutex
	state    State
	conn     Conn
	queue    []queued
	handlers map[string]map[uint64]Handler
	nextID   uint64

	lastPong atomic.Int64
}

type queued struct {
	key string
	env Envelope
}

func New(p Params) *Bridge {
	local := p.Local
	if local == nil {
		local = NewLocalBroadcaster()
	}
	prefix := strings.Trim(strings.TrimSpace(p.Config.Kitchen.TopicPrefix), ".")
	kitchen := p.Config.Kitchen
	kitchen.TopicPrefix = prefix

	return &Bridge{
		log:       p.Log.Named("kitchen.bridge"),
		transport: p.Transport,
		engine:    p.Engine,
		kitchen:   kitchen,
		posID:     p.Config.PosID,
		clock:     p.Clock,
		metrics:   p.Metrics,
		local:     local,
		handlers:  make(map[string]map[uint64]Handler),
	}
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Bridge) Local() *LocalBroadcaster {
	return b.local
}

// Topic returns the channel name for a short topic.
func (b *Bridge) Topic(short string) string {
	if b.kitchen.TopicPrefix == "" {
		return short
	}
	return b.kitchen.TopicPrefix + "." + short
}

func (b *Bridge) shortTopic(topic string) string {
	if b.kitchen.TopicPrefix == "" {
		return topic
	}
	return strings.TrimPrefix(topic, b.kitchen.TopicPrefix+".")
}

func (b *Bridge) PublishOrder(ctx context.Context, order orderdomain.Order) error {
	key := fmt.Sprintf("order:%s:v%d", order.ID, order.Version())
	return b.publish(ctx, TopicOrders, "order.updated", key, order)
}

func (b *Bridge) PublishJobUpdate(ctx context.Context, job kitchendomain.Job) error {
	key := fmt.Sprintf("job:%s:%s", job.ID.String(), job.Status)
	return b.publish(ctx, TopicJobs, "job.update", key, job)
}

func (b *Bridge) PublishDeliveryUpdate(ctx context.Context, update kitchendomain.DeliveryUpdate) error {
	key := fmt.Sprintf("delivery:%s:%s", update.OrderID, update.Status)
	return b.publish(ctx, TopicDelivery, "delivery.update", key, update)
}

func (b *Bridge) PublishHandoffUpdate(ctx context.Context, update kitchendomain.HandoffUpdate) error {
	key := fmt.Sprintf("handoff:%s:%s:%s", update.OrderID, update.StationID, update.Status)
	return b.publish(ctx, TopicHandoff, "handoff.update", key, update)
}

// Subscribe registers a handler for inbound messages on topic. The returned
// func removes it.
func (b *Bridge) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	set, ok := b.handlers[topic]
	if !ok {
		set = make(map[uint64]Handler)
		b.handlers[topic] = set
	}
	set[id] = handler
	conn := b.conn
	live := b.state == Subscribed && !ok
	b.mu.Unlock()

	if live {
		b.sendMu.Lock()
		err := conn.Send(context.Background(), b.subscribeFrame(topic))
		b.sendMu.Unlock()
		if err != nil {
			b.log.Warn("kitchen subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set := b.handlers[topic]; set != nil {
			delete(set, id)
		}
	}
}

func (b *Bridge) publish(ctx context.Context, topic, event, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := Envelope{
		ID:    uuid.NewString(),
		Type:  FramePublish,
		Topic: b.Topic(topic),
		Event: event,
		Data:  data,
		Meta: Meta{
			Channel:     topic,
			PublishedAt: b.clock.Now(),
			DedupeKey:   key,
		},
	}

	if b.transport == nil {
		b.local.Publish(topic, env)
		b.metrics.KitchenPublished(pathLocal)
		return nil
	}

	b.sendMu.Lock()
	b.mu.Lock()
	if b.state != Subscribed || b.conn == nil {
		b.enqueueLocked(key, env)
		b.mu.Unlock()
		b.sendMu.Unlock()
		b.local.Publish(topic, env)
		b.metrics.KitchenPublished(pathLocal)
		return nil
	}
	conn := b.conn
	b.mu.Unlock()

	err = conn.Send(ctx, env)
	b.sendMu.Unlock()
	if err != nil {
		b.log.Warn("kitchen publish failed, queued",
			zap.String("topic", env.Topic),
			zap.String("key", key),
			zap.Error(err),
		)
		b.mu.Lock()
		b.enqueueLocked(key, env)
		b.mu.Unlock()
		b.local.Publish(topic, env)
		b.metrics.KitchenPublished(pathLocal)
		return nil
	}
	b.metrics.KitchenPublished(pathDirect)
	return nil
}

// enqueueLocked appends env, replacing a queued message with the same key
// in place and evicting the oldest entry past capacity.
func (b *Bridge) enqueueLocked(key string, env Envelope) {
	defer func() { b.metrics.KitchenQueueDepth(len(b.queue)) }()

	if key != "" {
		for i := range b.queue {
			if b.queue[i].key == key {
				b.queue[i].env = env
				return
			}
		}
	}
	b.queue = append(b.queue, queued{key: key, env: env})

	capacity := b.engine.Get().Kitchen.QueueCapacity
	if capacity <= 0 {
		capacity = config.DefaultEngineConfig().Kitchen.QueueCapacity
	}
	for len(b.queue) > capacity {
		dropped := b.queue[0]
		b.queue = b.queue[1:]
		b.metrics.KitchenDropped()
		b.log.Warn("kitchen queue full, dropped oldest",
			zap.String("key", dropped.key),
			zap.String("topic", dropped.env.Topic),
		)
	}
}

// Run keeps the connection alive until ctx is done or the retry budget is
// spent. Attempts reset after every successful open.
func (b *Bridge) Run(ctx context.Context) error {
	if b.transport == nil {
		b.log.Info("kitchen transport disabled, local broadcast only")
		<-ctx.Done()
		return nil
	}

	attempts := 0
	for {
		if ctx.Err() != nil {
			b.setState(Disconnected)
			return nil
		}
		tuning := b.engine.Get().Kitchen

		b.setState(Connecting)
		conn, err := b.open(ctx, tuning)
		if err == nil {
			attempts = 0
			b.attach(ctx, conn)
			err = b.serve(ctx, conn, tuning)
			b.detach(conn)
			if ctx.Err() != nil {
				b.setState(Disconnected)
				return nil
			}
		} else {
			b.setState(Disconnected)
		}

		attempts++
		b.log.Warn("kitchen channel down",
			zap.String("transport", b.transport.Name()),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", tuning.MaxAttempts),
			zap.Error(err),
		)
		if tuning.MaxAttempts > 0 && attempts >= tuning.MaxAttempts {
			b.log.Error("kitchen retries exhausted", zap.Int("queued", b.QueueLen()))
			return ErrRetriesExhausted
		}

		timer := time.NewTimer(tuning.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.setState(Disconnected)
			return nil
		case <-timer.C:
		}
	}
}

func (b *Bridge) open(ctx context.Context, tuning config.KitchenTuning) (Conn, error) {
	conn, err := b.transport.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if b.kitchen.AuthSecret != "" {
		b.setState(Authenticating)
		if err := b.authenticate(ctx, conn, tuning); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	for _, topic := range b.topics() {
		if err := conn.Send(ctx, b.subscribeFrame(topic)); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (b *Bridge) authenticate(ctx context.Context, conn Conn, tuning config.KitchenTuning) error {
	ttl := b.kitchen.AuthTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	token, err := IssueToken(b.kitchen.AuthSecret, b.posID, ttl, b.clock.Now())
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, Envelope{Type: FrameAuth, Token: token, Meta: Meta{PublishedAt: b.clock.Now()}}); err != nil {
		return err
	}

	timeout := tuning.PongTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		env, err := conn.Receive(waitCtx)
		if err != nil {
			return err
		}
		switch {
		case env.Type == FrameAck && env.Event == string(FrameAuth):
			return nil
		case env.Type == FrameError:
			return fmt.Errorf("%w: %s", ErrAuthRejected, env.Error)
		}
	}
}

func (b *Bridge) subscribeFrame(topic string) Envelope {
	return Envelope{Type: FrameSubscribe, Topic: b.Topic(topic), Meta: Meta{Channel: topic, PublishedAt: b.clock.Now()}}
}

func (b *Bridge) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.handlers))
	for topic := range b.handlers {
		out = append(out, topic)
	}
	return out
}

// attach marks the connection live and flushes the queue in FIFO order.
// Entries that fail to send stay queued for the next connection.
func (b *Bridge) attach(ctx context.Context, conn Conn) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	b.conn = conn
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()
	b.setState(Subscribed)
	b.lastPong.Store(time.Now().UnixNano())

	for i, item := range pending {
		if err := conn.Send(ctx, item.env); err != nil {
			b.log.Warn("kitchen flush interrupted", zap.Int("remaining", len(pending)-i), zap.Error(err))
			b.mu.Lock()
			b.queue = append(append([]queued(nil), pending[i:]...), b.queue...)
			b.metrics.KitchenQueueDepth(len(b.queue))
			b.mu.Unlock()
			return
		}
		b.metrics.KitchenPublished(pathQueued)
	}
	b.metrics.KitchenQueueDepth(b.QueueLen())
	if len(pending) > 0 {
		b.log.Info("kitchen queue flushed", zap.Int("count", len(pending)))
	}
}

func (b *Bridge) detach(conn Conn) {
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()
	b.setState(Disconnected)
	_ = conn.Close()
}

// serve reads frames and sends heartbeats until the connection fails.
func (b *Bridge) serve(ctx context.Context, conn Conn, tuning config.KitchenTuning) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		for {
			env, err := conn.Receive(ctx)
			if err != nil {
				errCh <- err
				return
			}
			b.dispatch(ctx, conn, env)
		}
	}()

	interval := tuning.HeartbeatInterval
	if interval <= 0 {
		interval = config.DefaultEngineConfig().Kitchen.HeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-ticker.C:
			since := time.Since(time.Unix(0, b.lastPong.Load()))
			if tuning.PongTimeout > 0 && since > interval+tuning.PongTimeout {
				return ErrHeartbeatTimeout
			}
			b.sendMu.Lock()
			err := conn.Send(ctx, Envelope{Type: FramePing, Meta: Meta{PublishedAt: b.clock.Now()}})
			b.sendMu.Unlock()
			if err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, conn Conn, env Envelope) {
	switch env.Type {
	case FramePong:
		b.lastPong.Store(time.Now().UnixNano())
	case FramePing:
		b.sendMu.Lock()
		_ = conn.Send(ctx, Pong(b.clock.Now()))
		b.sendMu.Unlock()
	case FrameAck:
		b.log.Debug("kitchen ack", zap.String("event", env.Event), zap.String("topic", env.Topic))
	case FrameError:
		b.log.Warn("kitchen error frame", zap.String("event", env.Event), zap.String("error", env.Error))
	case FramePublish:
		topic := b.shortTopic(env.Topic)
		b.mu.Lock()
		handlers := make([]Handler, 0, len(b.handlers[topic]))
		for _, h := range b.handlers[topic] {
			handlers = append(handlers, h)
		}
		b.mu.Unlock()
		for _, h := range handlers {
			h(env)
		}
	}
}

func (b *Bridge) setState(state State) {
	b.mu.Lock()
	changed := b.state != state
	b.state = state
	b.mu.Unlock()
	if changed {
		b.metrics.KitchenState(int(state))
		b.log.Debug("kitchen state", zap.Stringer("state", state))
	}
}
