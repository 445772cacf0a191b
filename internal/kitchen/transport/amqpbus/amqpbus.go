// Package amqpbus carries kitchen frames over a RabbitMQ topic exchange.
// Each connection binds an exclusive queue per subscribed topic.
package amqpbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/kitchen/bridge"
	"go.uber.org/zap"
)

const (
	DefaultExchange = "ordersync.kds"
	inboxSize       = 64
)

var ErrClosed = errors.New("amqp_conn_closed")

type Transport struct {
	url      string
	exchange string
	secret   string
	log      *zap.Logger
}

func New(cfg config.KitchenConfig, log *zap.Logger) *Transport {
	return &Transport{
		url:      cfg.AMQPURL,
		exchange: DefaultExchange,
		secret:   cfg.AuthSecret,
		log:      log.Named("kitchen.amqp"),
	}
}

func (t *Transport) Name() string { return "amqp" }

func (t *Transport) Dial(ctx context.Context) (bridge.Conn, error) {
	connection, err := amqp.DialConfig(t.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, err
	}
	ch, err := connection.Channel()
	if err != nil {
		connection.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(t.exchange, "topic", true, false, false, false, nil); err != nil {
		connection.Close()
		return nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		connection.Close()
		return nil, err
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		connection.Close()
		return nil, err
	}

	return &conn{
		transport:  t,
		connection: connection,
		channel:    ch,
		queue:      q.Name,
		deliveries: deliveries,
		closing:    connection.NotifyClose(make(chan *amqp.Error, 1)),
		inbox:      make(chan bridge.Envelope, inboxSize),
		closed:     make(chan struct{}),
	}, nil
}

type conn struct {
	transport  *Transport
	connection *amqp.Connection
	channel    *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
	closing    chan *amqp.Error
	inbox      chan bridge.Envelope
	closed     chan struct{}
	once       sync.Once
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
		if err := c.channel.QueueBind(c.queue, env.Topic, c.transport.exchange, false, nil); err != nil {
			return err
		}
		c.reply(bridge.Ack(bridge.FrameSubscribe, env.Topic, now))
	case bridge.FramePublish:
		body, err := json.Marshal(env)
		if err != nil {
			return err
		}
		return c.channel.PublishWithContext(ctx, c.transport.exchange, env.Topic, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.ID,
			Timestamp:    env.Meta.PublishedAt,
			Type:         env.Event,
			Body:         body,
		})
	case bridge.FramePing:
		if c.connection.IsClosed() {
			return ErrClosed
		}
		c.reply(bridge.Pong(now))
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
		case d, ok := <-c.deliveries:
			if !ok {
				return bridge.Envelope{}, ErrClosed
			}
			env, err := bridge.DecodePublish(d.RoutingKey, d.Body)
			if err != nil {
				c.transport.log.Warn("malformed kitchen message",
					zap.String("routing_key", d.RoutingKey),
					zap.Error(err),
				)
				continue
			}
			return env, nil
		case amqpErr := <-c.closing:
			if amqpErr != nil {
				return bridge.Envelope{}, amqpErr
			}
			return bridge.Envelope{}, ErrClosed
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
		_ = c.channel.Close()
		err = c.connection.Close()
	})
	return err
}
