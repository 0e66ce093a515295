package conn

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is one live push connection. The Supervisor owns the handle and
// never leaks it to callers.
type Socket interface {
	// ReadMessage blocks for the next inbound frame.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one outbound frame.
	WriteMessage(data []byte) error
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer opens sockets. Injected so tests can script connection behavior.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

const defaultHandshakeTimeout = 10 * time.Second

// WebsocketDialer dials real connections with gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Socket, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := &websocket.Dialer{HandshakeTimeout: timeout}
	ws, resp, err := dialer.DialContext(ctx, url, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &websocketSocket{ws: ws}, nil
}

type websocketSocket struct {
	ws *websocket.Conn
}

func (s *websocketSocket) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := s.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		// Binary frames are not part of the protocol; skip them.
		if kind != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (s *websocketSocket) WriteMessage(data []byte) error {
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

func (s *websocketSocket) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.ws.Close()
}

// closeCode extracts the close code from a read error. Errors that are not
// close frames (dropped transport, reset) report -1 and count as abnormal.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}

// isNormalClose reports whether a close code terminates the connection
// without retry. 1000 is normal closure, 1005 is close without status.
func isNormalClose(code int) bool {
	return code == websocket.CloseNormalClosure || code == websocket.CloseNoStatusReceived
}
