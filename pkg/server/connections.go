package server

import (
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/peterlharding/dserver/pkg/metrics"
	"github.com/peterlharding/dserver/pkg/protocol"
)

// Transport names.
const (
	TransportTCP       = "tcp"
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// ConnectionInfo describes an open client connection.
type ConnectionInfo struct {
	ID          string    `json:"id"`
	Transport   string    `json:"transport"`
	RemoteAddr  string    `json:"remoteAddr"`
	Language    string    `json:"language,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	Requests    int64     `json:"requests"`
}

type connection struct {
	session *protocol.Session
	closer  io.Closer
}

// connections tracks open TCP and WebSocket connections so that they can
// be listed and closed on shutdown.
type connections struct {
	mu    sync.Mutex
	conns map[string]*connection
}

func newConnections() *connections {
	return &connections{conns: make(map[string]*connection)}
}

func (c *connections) add(sess *protocol.Session, closer io.Closer) {
	c.mu.Lock()
	c.conns[sess.ID.String()] = &connection{session: sess, closer: closer}
	c.mu.Unlock()
	metrics.ConnectionOpened(sess.Transport)
}

func (c *connections) remove(sess *protocol.Session) {
	c.mu.Lock()
	_, ok := c.conns[sess.ID.String()]
	delete(c.conns, sess.ID.String())
	c.mu.Unlock()
	if ok {
		metrics.ConnectionClosed(sess.Transport)
	}
}

// Count returns the number of open connections.
func (c *connections) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// List returns the open connections, oldest first.
func (c *connections) List() []ConnectionInfo {
	c.mu.Lock()
	out := make([]ConnectionInfo, 0, len(c.conns))
	for id, conn := range c.conns {
		s := conn.session
		out = append(out, ConnectionInfo{
			ID:          id,
			Transport:   s.Transport,
			RemoteAddr:  s.RemoteAddr,
			Language:    s.Language(),
			ConnectedAt: s.StartedAt,
			Requests:    s.Requests(),
		})
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b ConnectionInfo) int {
		if n := a.ConnectedAt.Compare(b.ConnectedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// closeAll closes every connection and returns how many were closed.
func (c *connections) closeAll() int {
	c.mu.Lock()
	closers := make([]io.Closer, 0, len(c.conns))
	for _, conn := range c.conns {
		closers = append(closers, conn.closer)
	}
	c.mu.Unlock()

	for _, cl := range closers {
		_ = cl.Close()
	}
	return len(closers)
}
