// Package client is a Go client for the dserver wire protocol.
//
// A Client holds one connection, over TCP or WebSocket, and sends one
// request at a time. Reply tokens such as *Exhausted* are returned as
// *TokenError values; the raw reply is always available through Send.
//
//	c, err := client.Dial(ctx, "localhost:9578")
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	h, err := c.Register(ctx, "accounts")
//	if err != nil {
//		return err
//	}
//	account, err := c.GetNext(ctx, h)
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/peterlharding/dserver/pkg/protocol"
	"github.com/peterlharding/dserver/pkg/source"
)

// DefaultTimeout bounds each request unless overridden with WithTimeout.
const DefaultTimeout = 30 * time.Second

var (
	// ErrUnknownSource is returned by Register when the server has no
	// source of that name.
	ErrUnknownSource = errors.New("client: unknown source")

	// ErrNotStored is returned by Store and StoreKeyed when the server
	// did not accept the value.
	ErrNotStored = errors.New("client: value not stored")

	// ErrUnknownVerb is returned when the server did not recognise the
	// request.
	ErrUnknownVerb = errors.New("client: unknown verb")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client: closed")
)

// TokenError is a reply token returned in place of a value.
type TokenError struct {
	Request string
	Reply   string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("dserver: %s returned %s", e.Request, e.Reply)
}

// Token returns the reply token, e.g. *GROUP*EXHAUSTED*.
func (e *TokenError) Token() string {
	return e.Reply
}

// IsToken reports whether err is a TokenError carrying token.
func IsToken(err error, token string) bool {
	var te *TokenError
	return errors.As(err, &te) && te.Reply == token
}

// Handle is the numeric source handle returned by Register.
type Handle int

// Registration is the REG reply of a structured client.
type Registration struct {
	Handle     Handle
	Attributes source.Attributes
}

// transport carries one request and its reply.
type transport interface {
	roundTrip(ctx context.Context, request string) (string, error)
	close() error
}

// Client talks to one dserver over a single connection. It is safe for
// concurrent use; requests are serialised.
type Client struct {
	mu      sync.Mutex
	t       transport
	timeout time.Duration
	closed  bool
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func newClient(t transport, opts ...Option) *Client {
	c := &Client{t: t, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to the TCP transport at addr. The connection is used in
// line mode: every request and reply is newline terminated.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: failed to connect to %s: %w", addr, err)
	}
	return newClient(&tcpTransport{conn: conn, r: bufio.NewReader(conn)}, opts...), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.t.close()
}

// Send writes request as is and returns the raw reply.
func (c *Client) Send(ctx context.Context, request string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.t.roundTrip(ctx, request)
}

// call sends the fields joined by '|' and converts tokens into errors.
func (c *Client) call(ctx context.Context, fields ...string) (string, error) {
	request := strings.Join(fields, "|")
	reply, err := c.Send(ctx, request)
	if err != nil {
		return "", err
	}
	switch {
	case reply == protocol.ReplyNone:
		return "", fmt.Errorf("%w: %s", ErrUnknownVerb, fields[0])
	case protocol.IsToken(reply):
		return "", &TokenError{Request: request, Reply: reply}
	}
	return reply, nil
}

// Init announces the client language. Structured languages (Python,
// JSON) receive server information and attribute-bearing registrations.
func (c *Client) Init(ctx context.Context, language string) (*protocol.ServerInfo, error) {
	reply, err := c.call(ctx, "INIT", language)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(reply, "{") {
		return nil, nil
	}
	var info protocol.ServerInfo
	if err := json.Unmarshal([]byte(reply), &info); err != nil {
		return nil, fmt.Errorf("client: malformed INIT reply %q: %w", reply, err)
	}
	return &info, nil
}

// Register resolves a source name to its handle.
func (c *Client) Register(ctx context.Context, name string) (Handle, error) {
	reg, err := c.RegisterWithAttributes(ctx, name)
	if err != nil {
		return -1, err
	}
	return reg.Handle, nil
}

// RegisterWithAttributes resolves a source name. The attributes are
// filled in only after Init with a structured language.
func (c *Client) RegisterWithAttributes(ctx context.Context, name string) (*Registration, error) {
	reply, err := c.call(ctx, "REG", name)
	if err != nil {
		return nil, err
	}

	handle, attrs, structured := strings.Cut(reply, "|")
	n, err := strconv.Atoi(handle)
	if err != nil {
		return nil, fmt.Errorf("client: malformed REG reply %q", reply)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	reg := &Registration{Handle: Handle(n)}
	if structured {
		if err := json.Unmarshal([]byte(attrs), &reg.Attributes); err != nil {
			return nil, fmt.Errorf("client: malformed REG attributes %q: %w", attrs, err)
		}
	}
	return reg, nil
}

func (h Handle) String() string { return strconv.Itoa(int(h)) }

// GetNext reads the next value of a CSV, Sequence, Indexer or Counter
// source.
func (c *Client) GetNext(ctx context.Context, h Handle) (string, error) {
	return c.call(ctx, "GETN", h.String())
}

// GetKeyed reads the next record of a Keyed group.
func (c *Client) GetKeyed(ctx context.Context, h Handle, group string) (string, error) {
	return c.call(ctx, "GETK", h.String(), group)
}

// GetKeyedRandom reads a random record of a Keyed group.
func (c *Client) GetKeyedRandom(ctx context.Context, h Handle, group string) (string, error) {
	return c.call(ctx, "GETKR", h.String(), group)
}

// GetKeyedSequence reads the next integer of a KeyedSequence key.
func (c *Client) GetKeyedSequence(ctx context.Context, h Handle, key string) (int64, error) {
	reply, err := c.call(ctx, "GETKS", h.String(), key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(reply, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("client: malformed GETKS reply %q", reply)
	}
	return n, nil
}

// GetHashed looks up key in a Hashed source.
func (c *Client) GetHashed(ctx context.Context, h Handle, key string) (string, error) {
	return c.call(ctx, "GETH", h.String(), key)
}

// GetIndexed reads the record at index of an Indexed source.
func (c *Client) GetIndexed(ctx context.Context, h Handle, index int) (string, error) {
	return c.call(ctx, "GETI", h.String(), strconv.Itoa(index))
}

// GetBarcode issues the next barcode of a Barcodes key.
func (c *Client) GetBarcode(ctx context.Context, h Handle, key string) (string, error) {
	return c.call(ctx, "GETB", h.String(), key)
}

// Store appends value to a CSV source.
func (c *Client) Store(ctx context.Context, h Handle, value string) error {
	return c.store(ctx, "STOC", h.String(), value)
}

// StoreKeyed appends value to the group key of a Keyed source.
func (c *Client) StoreKeyed(ctx context.Context, h Handle, key, value string) error {
	return c.store(ctx, "STOK", h.String(), key, value)
}

func (c *Client) store(ctx context.Context, fields ...string) error {
	reply, err := c.call(ctx, fields...)
	if err != nil {
		return err
	}
	if reply != protocol.ReplyStored {
		return ErrNotStored
	}
	return nil
}

type tcpTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

func (t *tcpTransport) roundTrip(ctx context.Context, request string) (string, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetDeadline(dl)
	} else {
		_ = t.conn.SetDeadline(time.Time{})
	}

	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := t.conn.Write([]byte(request + "\n")); err != nil {
		return "", fmt.Errorf("client: write failed: %w", contextErr(ctx, err))
	}
	line, err := t.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("client: read failed: %w", contextErr(ctx, err))
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *tcpTransport) close() error {
	return t.conn.Close()
}

func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
