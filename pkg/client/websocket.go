package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DialWebSocket connects to the /ws endpoint of the HTTP transport, e.g.
// ws://localhost:8000/ws. Each request and reply is one text message.
func DialWebSocket(ctx context.Context, url string, opts ...Option) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: websocket connection failed: %w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: websocket connection failed: %w", err)
	}
	return newClient(&wsTransport{conn: conn}, opts...), nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) roundTrip(ctx context.Context, request string) (string, error) {
	dl, ok := ctx.Deadline()
	if !ok {
		dl = time.Time{}
	}
	_ = t.conn.SetWriteDeadline(dl)
	_ = t.conn.SetReadDeadline(dl)

	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(request)); err != nil {
		return "", fmt.Errorf("client: write failed: %w", contextErr(ctx, err))
	}
	_, msg, err := t.conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("client: read failed: %w", contextErr(ctx, err))
	}
	return string(msg), nil
}

func (t *wsTransport) close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
