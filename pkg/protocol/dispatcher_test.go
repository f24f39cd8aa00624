package protocol

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterlharding/dserver/pkg/config"
	"github.com/peterlharding/dserver/pkg/metrics"
	"github.com/peterlharding/dserver/pkg/registry"
	"github.com/peterlharding/dserver/pkg/source"
)

var fixedTime = time.Date(2011, 7, 19, 17, 56, 8, 0, time.Local)

var fixtures = map[string]string{
	"accounts":  "# accounts\na1\na2\n",
	"seq":       "100\n",
	"runs":      "7\n",
	"codes":     "AU:Australia\nNZ:New Zealand\n",
	"streets":   "s0\ns1\ns2\ns3\ns4\n",
	"addresses": "[VIC]\nr0\nr1\nr2\n[EMPTY]\n",
	"keys":      "A:10\n",
	"barcodes":  "EE-16-AU:567961\n",
}

func newTestRegistry(t *testing.T) (*registry.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range fixtures {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".dat"), []byte(content), 0644))
	}
	start := int64(500)
	decls := []config.SourceConfig{
		{Name: "accounts", Type: "CSV"},
		{Name: "seq", Type: "Sequence"},
		{Name: "runs", Type: "Counter"},
		{Name: "codes", Type: "Hashed"},
		{Name: "streets", Type: "Indexed"},
		{Name: "addresses", Type: "Keyed"},
		{Name: "keys", Type: "KeyedSequence"},
		{Name: "barcodes", Type: "Barcodes"},
		{Name: "ids", Type: "Indexer", Start: &start},
	}
	reg, err := registry.Load(dir, decls, registry.WithSourceOptions(
		source.WithClock(func() time.Time { return fixedTime }),
	))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg, dir
}

func TestDispatcher_Process(t *testing.T) {
	reg, _ := newTestRegistry(t)
	d := NewDispatcher(reg)
	sess := NewSession("test", "127.0.0.1:1")

	steps := []struct {
		request string
		want    string
	}{
		{"INIT|C", "0"},
		{"REG|accounts", "0"},
		{"REG|barcodes\r\n", "7"},
		{"REG|nope", "-1"},
		{"REGK|0|key", "0"},
		{"REGI|0", "0"},

		// CSV
		{"GETN|0", "a1"},
		{"GETN|0", "a2"},
		{"GETN|0", "*Exhausted*"},
		{"STOC|0|a3", "1"},
		{"GETN|0", "a3"},

		// Sequence, Counter, Indexer
		{"GETN|1", "100"},
		{"GETN|1\n", "101"},
		{"GETN|2", "7"},
		{"GETN|2", "7"},
		{"GETN|8", "500"},
		{"GETN|8", "501"},

		// Hashed
		{"GETH|3|AU", "Australia"},
		{"GETH|3|NZ", "New Zealand"},
		{"GETH|3|XX", "*UNDEFINED*HASH*"},

		// Indexed
		{"GETI|4|0", "s0"},
		{"GETI|4|4", "s4"},
		{"GETI|4|5", "*INDEX*OUT*OF*RANGE*"},
		{"GETI|4|-1", "*INVALID*INDEX*"},
		{"GETI|4|x", "*INVALID*INDEX*"},

		// Keyed
		{"GETK|5|VIC", "r0"},
		{"GETK|5|VIC", "r1"},
		{"GETK|5|VIC", "r2"},
		{"GETK|5|VIC", "*GROUP*EXHAUSTED*"},
		{"GETK|5|NSW", "*INVALID*GROUP*"},
		{"GETKR|5|NSW", "*INVALID*GROUP*"},
		{"GETKR|5|EMPTY", "*GROUP*EXHAUSTED*"},
		{"STOK|5|NSW|n0", "1"},
		{"GETKR|5|NSW", "n0"},
		{"GETK|5|NSW", "n0"},

		// KeyedSequence
		{"GETKS|6|A", "10"},
		{"GETKS|6|A", "11"},
		{"GETKS|6|B", "*NO*VALID*KEY*"},

		// Barcodes
		{"GETB|7|EE-16-AU", "EE165679616AU"},
		{"GETB|7|XX-1-AU", "*NO*VALID*KEY*"},

		// dispatcher errors
		{"GETN", "*BAD*MESSAGE*"},
		{"GETN|0|extra", "*BAD*MESSAGE*"},
		{"STOK|5|G", "*BAD*MESSAGE*"},
		{"INIT", "*BAD*MESSAGE*"},
		{"REG", "*BAD*MESSAGE*"},
		{"REGI|0|x", "*BAD*MESSAGE*"},
		{"GETN|9", "*BAD*HANDLE*"},
		{"GETN|-1", "*BAD*HANDLE*"},
		{"GETN|abc", "*BAD*HANDLE*"},
		{"GETH|0|AU", "*UNKNOWN*SOURCE*TYPE*"},
		{"GETN|5", "*UNKNOWN*SOURCE*TYPE*"},
		{"STOC|1|x", "0"},
		{"STOK|0|G|x", "0"},
		{"HELLO|0", "None"},
		{"", "None"},
		{"getn|0", "None"},
	}

	for i, step := range steps {
		got := d.Process(sess, step.request)
		assert.Equal(t, step.want, got, "step %d: %q", i, step.request)
	}
	assert.Equal(t, int64(len(steps)), sess.Requests())
}

func TestDispatcher_StructuredClient(t *testing.T) {
	reg, _ := newTestRegistry(t)
	d := NewDispatcher(reg, WithVersion("1.2.3"))

	sess := NewSession("test", "")
	assert.Equal(t, `{"name":"dserver","version":"1.2.3","sources":9}`, d.Process(sess, "INIT|Python"))
	assert.True(t, sess.Structured())

	assert.Equal(t, `0|{"type":"CSV","delimiter":",","size":2}`, d.Process(sess, "REG|accounts"))
	assert.Equal(t, "-1", d.Process(sess, "REG|nope"))

	other := NewSession("test", "")
	assert.Equal(t, "0", d.Process(other, "REG|accounts"), "languages are per session")

	jsonSess := NewSession("test", "")
	d.Process(jsonSess, "INIT|json")
	assert.True(t, jsonSess.Structured())
}

func TestDispatcher_ConcurrentSequence(t *testing.T) {
	reg, dir := newTestRegistry(t)
	d := NewDispatcher(reg)

	const workers, perWorker = 20, 50

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := NewSession("test", "")
			for range perWorker {
				v := d.Process(sess, "GETN|1")
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker, "no value handed out twice")
	for i := 100; i < 100+workers*perWorker; i++ {
		assert.Equal(t, 1, seen[strconv.Itoa(i)])
	}

	trail, err := os.ReadFile(filepath.Join(dir, "tmp", "seq.used"))
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(trail), []byte("\n"))
	require.Len(t, lines, workers*perWorker)
	assert.Equal(t, "20110719175608 - 100", string(lines[0]))
	assert.Equal(t, "20110719175608 - 1099", string(lines[len(lines)-1]), "trail order matches issue order")
}

func TestDispatcher_Trails(t *testing.T) {
	reg, dir := newTestRegistry(t)
	d := NewDispatcher(reg)
	sess := NewSession("test", "")

	d.Process(sess, "GETK|5|VIC")
	d.Process(sess, "GETK|5|NSW")
	d.Process(sess, "STOK|5|NSW|n0")
	d.Process(sess, "GETN|9")

	used, err := os.ReadFile(filepath.Join(dir, "tmp", "addresses.used"))
	require.NoError(t, err)
	assert.Equal(t, "20110719175608 - VIC::r0\n20110719175608 - NSW::*INVALID*GROUP*\n", string(used))

	stored, err := os.ReadFile(filepath.Join(dir, "tmp", "addresses.stored"))
	require.NoError(t, err)
	assert.Equal(t, "20110719175608 - NSW::n0\n", string(stored))
}

func TestDispatcher_StoreRejectsValuesThatCannotReload(t *testing.T) {
	reg, dir := newTestRegistry(t)
	d := NewDispatcher(reg)
	sess := NewSession("test", "")

	steps := []struct {
		request string
		want    string
	}{
		{"STOC|0|x1\n20990101000000 - injected", "*BAD*MESSAGE*"},
		{"STOC|0|x1\r20990101000000 - injected", "*BAD*MESSAGE*"},
		{"STOK|5|NSW\n[VIC]|n0", "*BAD*MESSAGE*"},
		{"STOC|0|#notacomment", "0"},
		{"STOC|0|", "0"},
		{"STOC|0| padded ", "0"},
		{"STOK|5|NSW|[VIC]", "0"},
		{"STOK|5|NSW|#x", "0"},
		{"STOK|5|NSW|", "0"},
		{"STOK|5||n0", "0"},
		{"STOK|5|A::B|n0", "0"},
		{"STOK|5|A]B|n0", "0"},
		{"STOC|0|a3", "1"},
		{"STOK|5|NSW|n0", "1"},
	}
	for i, step := range steps {
		assert.Equal(t, step.want, d.Process(sess, step.request), "step %d: %q", i, step.request)
	}

	stored, err := os.ReadFile(filepath.Join(dir, "tmp", "accounts.stored"))
	require.NoError(t, err)
	assert.Equal(t, "20110719175608 - a3\n", string(stored))
	stored, err = os.ReadFile(filepath.Join(dir, "tmp", "addresses.stored"))
	require.NoError(t, err)
	assert.Equal(t, "20110719175608 - NSW::n0\n", string(stored))

	require.NoError(t, reg.FlushAll(t.Context()))
	data, err := os.ReadFile(filepath.Join(dir, "accounts.dat"))
	require.NoError(t, err)
	assert.Equal(t, "# accounts\na1\na2\na3\n", string(data))
	data, err = os.ReadFile(filepath.Join(dir, "addresses.dat"))
	require.NoError(t, err)
	assert.Equal(t, "[EMPTY]\n\n[NSW]\nn0\n\n[VIC]\nr0\nr1\nr2\n\n", string(data))
}

func TestDispatcher_Metrics(t *testing.T) {
	metrics.Reset()
	registryMetrics := metrics.Init()
	t.Cleanup(metrics.Reset)

	reg, _ := newTestRegistry(t)
	d := NewDispatcher(reg)
	sess := NewSession("test", "")

	d.Process(sess, "GETN|0")
	d.Process(sess, "GETH|3|XX")
	d.Process(sess, "GETN|99")
	d.Process(sess, "WHATEVER")

	var out bytes.Buffer
	_, err := registryMetrics.WriteTo(&out)
	require.NoError(t, err)
	text := out.String()
	assert.Contains(t, text, `dserver_requests_total{result="ok",verb="GETN"} 1`)
	assert.Contains(t, text, `dserver_requests_total{result="token",verb="GETH"} 1`)
	assert.Contains(t, text, `dserver_requests_total{result="bad",verb="GETN"} 1`)
	assert.Contains(t, text, `dserver_requests_total{result="bad",verb="unknown"} 1`)
	assert.Contains(t, text, `dserver_sources{type="Keyed"} 1`)
}

type panicRegistry struct{}

func (panicRegistry) Lookup(string) int             { return 0 }
func (panicRegistry) Get(int) (source.Source, bool) { panic("boom") }
func (panicRegistry) Len() int                      { return 1 }

func TestDispatcher_RecoversPanic(t *testing.T) {
	d := NewDispatcher(panicRegistry{})
	assert.Equal(t, TokenError, d.Process(NewSession("test", ""), "GETN|0"))
}

func TestToReply(t *testing.T) {
	assert.Equal(t, "*Exhausted*", ToReply(source.ErrExhausted))
	assert.Equal(t, TokenError, ToReply(assert.AnError))
	assert.True(t, IsToken("*BAD*HANDLE*"))
	assert.False(t, IsToken("a*b"))
	assert.False(t, IsToken("*"))
}
