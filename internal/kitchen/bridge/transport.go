package bridge

import "context"

// Transport opens duplex connections to the kitchen-display channel.
type Transport interface {
	Name() string
	Dial(ctx context.Context) (Conn, error)
}

// Conn carries frames. Receive blocks until a frame arrives, ctx is done or
// the connection closes.
type Conn interface {
	Send(ctx context.Context, env Envelope) error
	Receive(ctx context.Context) (Envelope, error)
	Close() error
}
