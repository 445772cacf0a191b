// Package redisbus carries kitchen frames over Redis pub/sub. The handshake
// frames are answered locally and publishes fan out through PUBLISH.
package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/kitchen/bridge"
	"go.uber.org/zap"
)

const (
	dedupePrefix     = "ordersync:kds:sent:"
	defaultDedupeTTL = 10 * time.Minute
	inboxSize        = 64
)

var ErrClosed = errors.New("redis_conn_closed")

type Transport struct {
	client    *redis.Client
	log       *zap.Logger
	secret    string
	dedupeTTL time.Duration
}

func NewClient(cfg config.KitchenConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func New(client *redis.Client, cfg config.KitchenConfig, log *zap.Logger) *Transport {
	return &Transport{
		client:    client,
		log:       log.Named("kitchen.redis"),
		secret:    cfg.AuthSecret,
		dedupeTTL: defaultDedupeTTL,
	}
}

func (t *Transport) Name() string { return "redis" }

func (t *Transport) Dial(ctx context.Context) (bridge.Conn, error) {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	pubsub := t.client.Subscribe(ctx)
	return &conn{
		transport: t,
		pubsub:    pubsub,
		messages:  pubsub.Channel(),
		inbox:     make(chan bridge.Envelope, inboxSize),
		closed:    make(chan struct{}),
	}, nil
}

type conn struct {
	transport *Transport
	pubsub    *redis.PubSub
	messages  <-chan *redis.Message
	inbox     chan bridge.Envelope
	closed    chan struct{}
	once      sync.Once
}

func (c *conn) Send(ctx context.Context, env bridge.Envelope) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	now := time.Now()
	switch env.Type {
	case bridge.FrameAuth:
		if c.transport.secret != "" {
			if _, err := bridge.ParseToken(c.transport.secret, env.Token); err != nil {
				c.reply(bridge.Failure(bridge.FrameAuth, "unauthorized", now))
				return nil
			}
		}
		c.reply(bridge.Ack(bridge.FrameAuth, "", now))
	case bridge.FrameSubscribe:
		if err := c.pubsub.Subscribe(ctx, env.Topic); err != nil {
			return err
		}
		c.reply(bridge.Ack(bridge.FrameSubscribe, env.Topic, now))
	case bridge.FramePublish:
		return c.publish(ctx, env)
	case bridge.FramePing:
		if err := c.transport.client.Ping(ctx).Err(); err != nil {
			return err
		}
		c.reply(bridge.Pong(now))
	}
	return nil
}

// publish sends env once per envelope id. A resend of an envelope that
// already reached Redis is acknowledged without publishing again.
func (c *conn) publish(ctx context.Context, env bridge.Envelope) error {
	if env.ID != "" {
		fresh, err := c.transport.client.SetNX(ctx, dedupePrefix+env.ID, env.Meta.DedupeKey, c.transport.dedupeTTL).Result()
		if err != nil {
			return err
		}
		if !fresh {
			c.transport.log.Debug("duplicate kitchen publish skipped", zap.String("id", env.ID))
			return nil
		}
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := c.transport.client.Publish(ctx, env.Topic, payload).Err(); err != nil {
		if env.ID != "" {
			c.transport.client.Del(context.Background(), dedupePrefix+env.ID)
		}
		return err
	}
	return nil
}

func (c *conn) reply(env bridge.Envelope) {
	select {
	case c.inbox <- env:
	case <-c.closed:
	}
}

func (c *conn) Receive(ctx context.Context) (bridge.Envelope, error) {
	for {
		select {
		case env := <-c.inbox:
			return env, nil
		case msg, ok := <-c.messages:
			if !ok {
				return bridge.Envelope{}, ErrClosed
			}
			env, err := bridge.DecodePublish(msg.Channel, []byte(msg.Payload))
			if err != nil {
				c.transport.log.Warn("malformed kitchen message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			return env, nil
		case <-c.closed:
			return bridge.Envelope{}, ErrClosed
		case <-ctx.Done():
			return bridge.Envelope{}, ctx.Err()
		}
	}
}

func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.pubsub.Close()
	})
	return err
}
