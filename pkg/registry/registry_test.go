package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterlharding/dserver/pkg/audit"
	"github.com/peterlharding/dserver/pkg/config"
	"github.com/peterlharding/dserver/pkg/source"
)

func writeDat(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".dat"), []byte(content), 0644))
}

func testDecls() []config.SourceConfig {
	return []config.SourceConfig{
		{Name: "accounts", Type: "CSV"},
		{Name: "seq", Type: "Sequence"},
		{Name: "ids", Type: "Indexer"},
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeDat(t, dir, "accounts", "a1\na2\n")
	writeDat(t, dir, "seq", "41\n")

	r, err := Load(dir, testDecls())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 0, r.Lookup("accounts"))
	assert.Equal(t, 1, r.Lookup("seq"))
	assert.Equal(t, 2, r.Lookup("ids"))
	assert.Equal(t, NoHandle, r.Lookup("missing"))

	src, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, "seq", src.Name())

	_, ok = r.Get(3)
	assert.False(t, ok)
	_, ok = r.Get(NoHandle)
	assert.False(t, ok)

	src, ok = r.ByName("ids")
	require.True(t, ok)
	assert.Equal(t, source.TypeIndexer, src.Type())

	names := make([]string, 0, r.Len())
	for _, s := range r.All() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"accounts", "seq", "ids"}, names)

	_, err = os.Stat(filepath.Join(dir, "tmp", "accounts.used"))
	assert.NoError(t, err, "trails are opened at load")
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeDat(t, dir, "accounts", "a1\n")

	var closed []string
	factory := func(name string, stream audit.Stream) (audit.Logger, error) {
		return &trackingLogger{onClose: func() { closed = append(closed, name+"."+string(stream)) }}, nil
	}

	r, err := Load(dir, testDecls(), WithSourceOptions(source.WithAudit(factory)))
	require.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), `"seq"`)
	assert.ElementsMatch(t, []string{"accounts.used", "accounts.stored"}, closed)
}

func TestLoad_UnknownType(t *testing.T) {
	_, err := Load(t.TempDir(), []config.SourceConfig{{Name: "x", Type: "Tree"}})
	assert.Error(t, err)
}

func TestNew_Duplicate(t *testing.T) {
	a := &fakeSource{name: "a"}
	_, err := New(nil, a, &fakeSource{name: "a"})
	assert.ErrorIs(t, err, ErrDuplicateSource)

	_, err = New(nil, a, nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestFlushAll(t *testing.T) {
	dir := t.TempDir()
	writeDat(t, dir, "accounts", "a1\na2\n")
	writeDat(t, dir, "seq", "41\n")

	r, err := Load(dir, testDecls(), WithSourceOptions(source.WithAudit(audit.NoOpFactory())))
	require.NoError(t, err)

	seq, _ := r.ByName("seq")
	v, err := seq.(source.NextReader).Next()
	require.NoError(t, err)
	assert.Equal(t, "41", v)

	require.NoError(t, r.FlushAll(context.Background()))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(filepath.Join(dir, "seq.dat"))
	require.NoError(t, err)
	assert.Equal(t, "42\n", string(data))
}

func TestFlushAll_ContinuesAfterFailure(t *testing.T) {
	bad := &fakeSource{name: "bad", flushErr: errors.New("disk full")}
	good := &fakeSource{name: "good"}
	r, err := New(nil, bad, good)
	require.NoError(t, err)

	err = r.FlushAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush bad: disk full")
	assert.Equal(t, 1, good.flushes)
	assert.Equal(t, 1, bad.flushes)
}

func TestClose_JoinsErrors(t *testing.T) {
	a := &fakeSource{name: "a", closeErr: errors.New("boom")}
	b := &fakeSource{name: "b"}
	r, err := New(nil, a, b)
	require.NoError(t, err)

	err = r.Close()
	assert.ErrorContains(t, err, "close a: boom")
	assert.True(t, b.closed)
}

type fakeSource struct {
	name     string
	flushErr error
	closeErr error
	flushes  int
	closed   bool
}

func (f *fakeSource) Name() string                  { return f.name }
func (f *fakeSource) Type() source.Type             { return source.TypeCounter }
func (f *fakeSource) Attributes() source.Attributes { return source.Attributes{Type: source.TypeCounter} }
func (f *fakeSource) Summary() string               { return "fake" }
func (f *fakeSource) Flush() error {
	f.flushes++
	return f.flushErr
}
func (f *fakeSource) Close() error {
	f.closed = true
	return f.closeErr
}

type trackingLogger struct {
	onClose func()
}

func (l *trackingLogger) Log(audit.Entry) error { return nil }
func (l *trackingLogger) Close() error {
	l.onClose()
	return nil
}
