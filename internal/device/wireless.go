// ABOUTME: Wireless smart-light backend over WebSocket
// ABOUTME: Sends uuid-tagged set frames and waits for controller acks
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// defaultWriteWindow bounds a Set call when the caller supplied no
// deadline of its own.
const defaultWriteWindow = 500 * time.Millisecond

// Wireless talks to a smart-light controller over a persistent
// WebSocket connection. The connection is dialed lazily on the first
// Set and re-dialed after any I/O failure. Calls are serialized by the
// dispatch layer, one worker per device, so no internal locking is
// needed around the request/ack exchange beyond reconnect state.
type Wireless struct {
	addr string
	conn *websocket.Conn
}

type setFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ackFrame struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NewWireless creates a backend for a controller at host:port.
func NewWireless(addr string) *Wireless {
	return &Wireless{addr: addr}
}

// Set delivers a command frame and waits for the controller's ack.
// A nil payload is the revert ("off") frame.
func (w *Wireless) Set(ctx context.Context, payload json.RawMessage) error {
	conn, err := w.connect(ctx)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(defaultWriteWindow)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	frame := setFrame{Type: "set", ID: uuid.New().String(), Payload: payload}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(frame); err != nil {
		w.drop()
		return classify(err)
	}

	conn.SetReadDeadline(deadline)
	var ack ackFrame
	if err := conn.ReadJSON(&ack); err != nil {
		w.drop()
		return classify(err)
	}

	if ack.ID != frame.ID {
		// Controller is out of step; resync on the next call.
		w.drop()
		return fmt.Errorf("%w: ack id %q does not match %q", ErrRejected, ack.ID, frame.ID)
	}
	if !ack.OK {
		return fmt.Errorf("%w: %s", ErrRejected, ack.Error)
	}
	return nil
}

// connect returns the live connection, dialing if necessary.
func (w *Wireless) connect(ctx context.Context) (*websocket.Conn, error) {
	if w.conn != nil {
		return w.conn, nil
	}

	u := url.URL{Scheme: "ws", Host: w.addr, Path: "/openlights"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnreachable, w.addr, err)
	}
	w.conn = conn
	return conn, nil
}

func (w *Wireless) drop() {
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

// classify maps transport errors onto the backend error taxonomy.
func classify(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Close closes the controller connection if one is open.
func (w *Wireless) Close() error {
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
