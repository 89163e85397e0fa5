package korbitapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iljae-kwon/korbit-engine/internal/ports"
)

// MyOrderEvent aliases the port's event type so PrivateStream satisfies
// ports.PrivateOrderStream without a conversion step.
type MyOrderEvent = ports.MyOrderEvent

const (
	wsHandshakeTimeout = 15 * time.Second
	wsIdleTimeout      = 90 * time.Second
	wsMaxBackoff       = 30 * time.Second
	wsStableAfter      = 60 * time.Second
)

// myOrderMessage mirrors the private-order push payload. Numeric fields
// are decoded into plain string fields, as the DEFAULT format sends them;
// a frame that carries them as JSON numbers fails to decode and is dropped.
type myOrderMessage struct {
	Type            string `json:"type"`
	UUID            string `json:"uuid"`
	Market          string `json:"code"`
	Side            string `json:"ask_bid"`
	State           string `json:"state"`
	Price           string `json:"price"`
	Volume          string `json:"volume"`
	ExecutedVolume  string `json:"executed_volume"`
	RemainingVolume string `json:"remaining_volume"`
}

// PrivateStream is the ports.PrivateOrderStream implementation: it
// subscribes to the myOrder channel and reconnects on drops after a
// backoff of 2 s per attempt, capped at 30 s (the attempt count resets
// after a connection that stayed up 60 s), never surfacing a disconnect to the caller except
// through Connected()/LastMessageAt().
type PrivateStream struct {
	url   string
	creds Credentials

	lastMsgMs atomic.Int64
	connected atomic.Bool
}

// NewPrivateStream builds a PrivateStream against wsURL (e.g.
// "wss://api.korbit-engine.example/websocket/v1/private").
func NewPrivateStream(wsURL string, creds Credentials) *PrivateStream {
	return &PrivateStream{url: wsURL, creds: creds}
}

// Connect dials and subscribes, reconnecting with backoff until ctx is
// cancelled. Each decoded order event, in either single-object or array
// framing, is dispatched through onEvent.
func (s *PrivateStream) Connect(ctx context.Context, onEvent func(MyOrderEvent)) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		connectedSince, err := s.runOnce(ctx, onEvent)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.connected.Store(false)
		if err != nil {
			slog.Warn("korbitapi: private stream disconnected", "err", err, "attempt", attempt)
		}

		if time.Since(connectedSince) >= wsStableAfter {
			attempt = 0
		}
		attempt++

		backoff := time.Duration(attempt*2) * time.Second
		if backoff > wsMaxBackoff {
			backoff = wsMaxBackoff
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runOnce performs one connect-subscribe-read loop, returning the time the
// connection was established once it ends (for the caller's stable-uptime
// backoff reset).
func (s *PrivateStream) runOnce(ctx context.Context, onEvent func(MyOrderEvent)) (time.Time, error) {
	token, err := signedJWT(s.creds, nil)
	if err != nil {
		return time.Now(), fmt.Errorf("sign ws auth: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return time.Now(), fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	connectedSince := time.Now()
	s.connected.Store(true)

	sub := []map[string]any{
		{"ticket": uuid.NewString()},
		{"type": "myOrder"},
		{"format": "DEFAULT"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return connectedSince, fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return connectedSince, fmt.Errorf("read: %w", err)
		}

		s.lastMsgMs.Store(time.Now().UnixMilli())

		for _, ev := range decodeMyOrderFrame(raw) {
			onEvent(ev)
		}
	}
}

// decodeMyOrderFrame handles both single-object and array message framing,
// since the exchange sends arrays for batched updates and single objects
// otherwise.
func decodeMyOrderFrame(raw []byte) []MyOrderEvent {
	trimmed := strings.TrimSpace(string(raw))
	var out []MyOrderEvent

	if strings.HasPrefix(trimmed, "[") {
		var msgs []myOrderMessage
		if err := json.Unmarshal(raw, &msgs); err != nil {
			slog.Warn("korbitapi: could not decode myOrder array frame", "err", err)
			return nil
		}
		for _, m := range msgs {
			out = append(out, eventFromMessage(m))
		}
		return out
	}

	var m myOrderMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		slog.Warn("korbitapi: could not decode myOrder frame", "err", err)
		return nil
	}
	return []MyOrderEvent{eventFromMessage(m)}
}

func eventFromMessage(m myOrderMessage) MyOrderEvent {
	return MyOrderEvent{
		OrderID:        m.UUID,
		Market:         m.Market,
		Side:           m.Side,
		State:          m.State,
		ExecutedVolume: parseFloat(m.ExecutedVolume),
		RemainingVol:   parseFloat(m.RemainingVolume),
		Volume:         parseFloat(m.Volume),
		Price:          parseFloat(m.Price),
	}
}

// Connected reports whether the underlying socket is currently up.
func (s *PrivateStream) Connected() bool { return s.connected.Load() }

// LastMessageAt is unix-ms of the last message received, or 0 if none.
func (s *PrivateStream) LastMessageAt() int64 { return s.lastMsgMs.Load() }
