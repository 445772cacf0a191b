package bridge

import (
	"encoding/json"
	"time"
)

type FrameType string

const (
	FrameAuth      FrameType = "auth"
	FrameSubscribe FrameType = "subscribe"
	FramePublish   FrameType = "publish"
	FramePing      FrameType = "ping"
	FramePong      FrameType = "pong"
	FrameAck       FrameType = "ack"
	FrameError     FrameType = "error"
)

type Meta struct {
	Channel     string    `json:"channel"`
	PublishedAt time.Time `json:"publishedAt"`
	DedupeKey   string    `json:"dedupeKey,omitempty"`
}

// Envelope is the single frame shape on the kitchen channel. Event names
// the message kind on publish frames and the acknowledged frame on acks.
type Envelope struct {
	ID    string          `json:"id,omitempty"`
	Type  FrameType       `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Event string          `json:"event,omitempty"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Meta  Meta            `json:"meta"`
	Error string          `json:"error,omitempty"`
}

func Ack(of FrameType, topic string, at time.Time) Envelope {
	return Envelope{Type: FrameAck, Event: string(of), Topic: topic, Meta: Meta{PublishedAt: at}}
}

func Pong(at time.Time) Envelope {
	return Envelope{Type: FramePong, Meta: Meta{PublishedAt: at}}
}

func Failure(of FrameType, reason string, at time.Time) Envelope {
	return Envelope{Type: FrameError, Event: string(of), Error: reason, Meta: Meta{PublishedAt: at}}
}

// DecodePublish turns a channel payload into a publish frame. Payloads that
// are not envelopes are wrapped as raw data.
func DecodePublish(channel string, payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		env = Envelope{Data: json.RawMessage(payload)}
	}
	env.Type = FramePublish
	if env.Topic == "" {
		env.Topic = channel
	}
	if env.Meta.Channel == "" {
		env.Meta.Channel = channel
	}
	return env, nil
}
