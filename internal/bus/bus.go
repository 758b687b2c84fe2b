// Package bus carries addressed JSON messages between components, with
// optional request/reply.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoHandlers is returned when no subscriber is bound to an address.
	ErrNoHandlers = errors.New("bus: no handlers for address")
	// ErrTimeout is returned when a request receives no reply before its deadline.
	ErrTimeout = errors.New("bus: reply timeout")
)

// Message is the envelope exchanged on the bus.
type Message struct {
	Address string          `json:"address"`
	ReplyTo string          `json:"replyTo,omitempty"`
	Body    json.RawMessage `json:"body"`
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if len(m.Body) == 0 {
		return fmt.Errorf("decode %s: empty body", m.Address)
	}
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Address, err)
	}
	return nil
}

// HandlerFunc processes one message. A non-nil return value is sent back
// to the requester when the message carries a reply address.
type HandlerFunc func(ctx context.Context, msg Message) any

type Subscription interface {
	Unsubscribe() error
}

type Bus interface {
	Publish(ctx context.Context, address string, body any) error
	// Request sends body to address and waits for the first reply until ctx is done.
	Request(ctx context.Context, address string, body any) (json.RawMessage, error)
	Subscribe(ctx context.Context, address string, h HandlerFunc) (Subscription, error)
}

func encode(body any) (json.RawMessage, error) {
	if raw, ok := body.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return b, nil
}

func timeoutError(address string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTimeout, address, err)
}
