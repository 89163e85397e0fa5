package ports

import "context"

// MyOrderEvent is one private-order WebSocket message, already unwrapped
// from Upbit's single-object-or-array framing.
type MyOrderEvent struct {
	OrderID        string
	Market         string
	Side           string // "bid" | "ask", as the exchange sends it
	State          string // raw event string fed to the state machine
	ExecutedVolume float64
	RemainingVol   float64
	Volume         float64
	Price          float64
}

// PrivateOrderStream is the push side of order-state reconciliation. The
// Order Manager owns the only client instance and dispatches every event
// through the same routine REST responses go through.
type PrivateOrderStream interface {
	// Connect dials the private-order WebSocket and subscribes. It blocks
	// until ctx is cancelled, reconnecting internally with backoff on
	// drops; each decoded event is sent to onEvent.
	Connect(ctx context.Context, onEvent func(MyOrderEvent)) error

	// Connected reports whether the underlying socket is currently up.
	Connected() bool

	// LastMessageAt is unix-ms of the last message received, or 0 if none.
	LastMessageAt() int64
}
