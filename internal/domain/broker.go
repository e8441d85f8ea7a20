package domain

import "context"

// BrokerState describes the lifecycle of the process-wide broker connection.
type BrokerState int32

const (
	BrokerDisconnected BrokerState = iota
	BrokerConnecting
	BrokerConnected
	BrokerFailed
)

func (s BrokerState) String() string {
	switch s {
	case BrokerDisconnected:
		return "disconnected"
	case BrokerConnecting:
		return "connecting"
	case BrokerConnected:
		return "connected"
	case BrokerFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is a single entry consumed from a broker topic.
type Message struct {
	// ID is the broker-assigned entry ID (e.g. 1700000000000-0 for Redis Streams).
	ID      string
	Topic   string
	Payload []byte
}

// Handler processes one consumed message. The broker acknowledges the message
// once the handler returns, whether or not it returned an error.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends envelopes to a named topic.
type Publisher interface {
	// Publish JSON-encodes v and appends it to topic.
	// It fails with ErrNotConnected unless the broker is connected.
	Publish(ctx context.Context, topic string, v any) error
}

// Broker decouples the application from the underlying message transport.
type Broker interface {
	Publisher

	// Connect establishes the connection with bounded retries.
	Connect(ctx context.Context) error

	// State reports the current connection state.
	State() BrokerState
}
