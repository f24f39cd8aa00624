package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterlharding/dserver/pkg/audit"
	"github.com/peterlharding/dserver/pkg/config"
	"github.com/peterlharding/dserver/pkg/protocol"
	"github.com/peterlharding/dserver/pkg/registry"
	"github.com/peterlharding/dserver/pkg/server"
	"github.com/peterlharding/dserver/pkg/source"
)

const (
	hAccounts Handle = iota
	hSeq
	hUsers
	hIDs
	hPhones
	hRows
	hLabels
)

func startServer(t *testing.T) *server.Server {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"accounts": "a1\na2\na3\n",
		"seq":      "100\n",
		"users":    "[g1]\nu1\n[g2]\nv1\nv2\n",
		"ids":      "VIC:10\n",
		"phones":   "home:+61 3 9999 0000\n",
		"rows":     "r0\nr1\n",
		"labels":   "EE-16-AU:56796\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".dat"), []byte(content), 0644))
	}
	reg, err := registry.Load(dir, []config.SourceConfig{
		{Name: "accounts", Type: "CSV"},
		{Name: "seq", Type: "Sequence"},
		{Name: "users", Type: "Keyed"},
		{Name: "ids", Type: "KeyedSequence"},
		{Name: "phones", Type: "Hashed"},
		{Name: "rows", Type: "Indexed"},
		{Name: "labels", Type: "Barcodes"},
	}, registry.WithSourceOptions(source.WithAudit(audit.NoOpFactory())))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	tcpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.New(config.ServerConfig{}, protocol.NewDispatcher(reg, protocol.WithVersion("1.0.0")), reg,
		server.WithTCPListener(tcpLn), server.WithHTTPListener(httpLn))
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func dial(t *testing.T, srv *server.Server) *Client {
	t.Helper()
	c, err := Dial(context.Background(), srv.TCPAddr().String(), WithTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Operations(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)
	ctx := context.Background()

	info, err := c.Init(ctx, "C")
	require.NoError(t, err)
	assert.Nil(t, info)

	h, err := c.Register(ctx, "seq")
	require.NoError(t, err)
	assert.Equal(t, hSeq, h)

	_, err = c.Register(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownSource)

	v, err := c.GetNext(ctx, hAccounts)
	require.NoError(t, err)
	assert.Equal(t, "a1", v)

	v, err = c.GetNext(ctx, hSeq)
	require.NoError(t, err)
	assert.Equal(t, "100", v)

	v, err = c.GetKeyed(ctx, hUsers, "g1")
	require.NoError(t, err)
	assert.Equal(t, "u1", v)

	_, err = c.GetKeyed(ctx, hUsers, "g1")
	assert.True(t, IsToken(err, "*GROUP*EXHAUSTED*"), "got %v", err)

	require.NoError(t, c.StoreKeyed(ctx, hUsers, "g1", "u9"))
	v, err = c.GetKeyed(ctx, hUsers, "g1")
	require.NoError(t, err)
	assert.Equal(t, "u9", v)

	v, err = c.GetKeyedRandom(ctx, hUsers, "g2")
	require.NoError(t, err)
	assert.Contains(t, []string{"v1", "v2"}, v)

	n, err := c.GetKeyedSequence(ctx, hIDs, "VIC")
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	v, err = c.GetHashed(ctx, hPhones, "home")
	require.NoError(t, err)
	assert.Equal(t, "+61 3 9999 0000", v)

	_, err = c.GetHashed(ctx, hPhones, "work")
	assert.True(t, IsToken(err, "*UNDEFINED*HASH*"), "got %v", err)

	v, err = c.GetIndexed(ctx, hRows, 1)
	require.NoError(t, err)
	assert.Equal(t, "r1", v)

	_, err = c.GetIndexed(ctx, hRows, 5)
	var te *TokenError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "*INDEX*OUT*OF*RANGE*", te.Token())
	assert.Equal(t, "GETI|5|5", te.Request)

	v, err = c.GetBarcode(ctx, hLabels, "EE-16-AU")
	require.NoError(t, err)
	assert.Equal(t, "EE160567961AU", v)

	require.NoError(t, c.Store(ctx, hAccounts, "a4"))
	assert.ErrorIs(t, c.Store(ctx, hSeq, "x"), ErrNotStored)

	_, err = c.GetNext(ctx, 99)
	assert.True(t, IsToken(err, protocol.TokenBadHandle), "got %v", err)

	reply, err := c.Send(ctx, "FOO|1")
	require.NoError(t, err)
	assert.Equal(t, protocol.ReplyNone, reply)
}

func TestClient_Structured(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)
	ctx := context.Background()

	info, err := c.Init(ctx, "Python")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "dserver", info.Name)
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, 7, info.Sources)

	reg, err := c.RegisterWithAttributes(ctx, "accounts")
	require.NoError(t, err)
	assert.Equal(t, hAccounts, reg.Handle)
	assert.Equal(t, source.TypeList, reg.Attributes.Type)
	assert.Equal(t, ",", reg.Attributes.Delimiter)
	assert.Equal(t, 3, reg.Attributes.Size)

	_, err = c.RegisterWithAttributes(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestClient_Concurrent(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for range 10 {
		wg.Go(func() {
			v, err := c.GetNext(ctx, hSeq)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Len(t, seen, 10)
}

func TestClient_WebSocket(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()

	c, err := DialWebSocket(ctx, "ws://"+srv.HTTPAddr().String()+"/ws", WithTimeout(5*time.Second))
	require.NoError(t, err)
	defer c.Close()

	h, err := c.Register(ctx, "accounts")
	require.NoError(t, err)
	v, err := c.GetNext(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "a1", v)

	_, err = c.GetKeyed(ctx, hUsers, "nope")
	assert.True(t, IsToken(err, "*INVALID*GROUP*"), "got %v", err)
}

func TestClient_Timeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(time.Second)
		}
	}()

	c, err := Dial(context.Background(), ln.Addr().String(), WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Send(context.Background(), "GETN|0")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)

	require.NoError(t, c.Close())
	_, err = c.Send(context.Background(), "GETN|0")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr)
	assert.Error(t, err)
}
