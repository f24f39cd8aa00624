package recovery

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterlharding/dserver/pkg/audit"
	"github.com/peterlharding/dserver/pkg/config"
)

var fixedTime = time.Date(2011, 7, 19, 17, 56, 8, 0, time.Local)

func fixedClock() time.Time { return fixedTime }

const stamp = "20110719175608"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func writeTrail(t *testing.T, dir, name string, stream audit.Stream, entries ...audit.Entry) {
	t.Helper()
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Line())
		b.WriteByte('\n')
	}
	writeFile(t, audit.Path(filepath.Join(dir, "tmp"), name, stream), b.String())
}

func used(values ...string) []audit.Entry {
	out := make([]audit.Entry, 0, len(values))
	for _, v := range values {
		out = append(out, audit.NewEntry(fixedTime, v))
	}
	return out
}

func keyed(pairs ...string) []audit.Entry {
	out := make([]audit.Entry, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, audit.NewKeyedEntry(fixedTime, pairs[i], pairs[i+1]))
	}
	return out
}

func TestRecover_List(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "accounts.dat"), "a\nb\nc\n")
	writeTrail(t, dir, "accounts", audit.StreamUsed, used("a", "*Exhausted*")...)
	writeTrail(t, dir, "accounts", audit.StreamStored, used("c", "d")...)

	decl := config.SourceConfig{Name: "accounts", Type: "CSV"}
	res, err := Recover(dir, decl, Options{Now: fixedClock})
	require.NoError(t, err)

	assert.True(t, res.Replayable)
	assert.Equal(t, 2, res.Used)
	assert.Equal(t, 2, res.Stored)
	assert.Equal(t, 1, res.Appended)
	assert.Equal(t, 1, res.Consumed)
	assert.True(t, res.Flushed)
	assert.Equal(t, "b\nc\nd\n", readFile(t, filepath.Join(dir, "accounts.dat")))

	tmp := filepath.Join(dir, "tmp")
	assert.Equal(t, []string{
		filepath.Join(tmp, stamp+"_accounts.used"),
		filepath.Join(tmp, stamp+"_accounts.stored"),
	}, res.Archived)
	assert.NoFileExists(t, audit.Path(tmp, "accounts", audit.StreamUsed))
	assert.NoFileExists(t, audit.Path(tmp, "accounts", audit.StreamStored))
	assert.Equal(t, "a\nb\nc\n", readFile(t, filepath.Join(tmp, stamp+"_accounts.bak")))

	// Trails are archived, so a second run is a no-op.
	again, err := Recover(dir, decl, Options{Now: fixedClock})
	require.NoError(t, err)
	assert.False(t, again.Changed())
	assert.False(t, again.Flushed)
	assert.Empty(t, again.Archived)
	assert.Equal(t, "b\nc\nd\n", readFile(t, filepath.Join(dir, "accounts.dat")))
}

func TestRecover_DryRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "accounts.dat"), "a\nb\n")
	writeTrail(t, dir, "accounts", audit.StreamUsed, used("a")...)

	res, err := Recover(dir, config.SourceConfig{Name: "accounts", Type: "CSV"}, Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Consumed)
	assert.False(t, res.Flushed)
	assert.Empty(t, res.Archived)
	assert.Equal(t, "a\nb\n", readFile(t, filepath.Join(dir, "accounts.dat")))
	assert.FileExists(t, audit.Path(filepath.Join(dir, "tmp"), "accounts", audit.StreamUsed))
}

func TestRecover_Sequence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "seq.dat"), "10\n")
	writeTrail(t, dir, "seq", audit.StreamUsed, used("10", "11", "12", "*ERROR*")...)

	res, err := Recover(dir, config.SourceConfig{Name: "seq", Type: "Sequence"}, Options{Now: fixedClock})
	require.NoError(t, err)

	assert.True(t, res.Flushed)
	assert.Equal(t, "13\n", readFile(t, filepath.Join(dir, "seq.dat")))
	assert.Len(t, res.Archived, 1)
}

func TestRecover_Keyed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "users.dat"), "[g1]\nx\ny\n")
	writeTrail(t, dir, "users", audit.StreamUsed, keyed("g1", "x")...)
	writeTrail(t, dir, "users", audit.StreamStored, keyed("g2", "z")...)

	res, err := Recover(dir, config.SourceConfig{Name: "users", Type: "Keyed"}, Options{Now: fixedClock})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Appended)
	assert.Equal(t, 1, res.Consumed)
	assert.Equal(t, "[g1]\ny\n\n[g2]\nz\n\n", readFile(t, filepath.Join(dir, "users.dat")))
}

func TestRecover_SkipsMalformedLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "seq.dat"), "1\n")
	writeFile(t, audit.Path(filepath.Join(dir, "tmp"), "seq", audit.StreamUsed),
		"garbage\n"+audit.NewEntry(fixedTime, "5").Line()+"\n\n")

	res, err := Recover(dir, config.SourceConfig{Name: "seq", Type: "Sequence"}, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Used)
	assert.Equal(t, 1, res.Skipped)
}

func TestRecover_NothingToReplay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "names.dat"), "k1:v1\n")
	writeTrail(t, dir, "names", audit.StreamUsed, keyed("k1", "v1")...)

	res, err := Recover(dir, config.SourceConfig{Name: "names", Type: "Hashed"}, Options{})
	require.NoError(t, err)
	assert.False(t, res.Replayable)
	assert.Contains(t, res.String(), "nothing to replay")
	assert.FileExists(t, audit.Path(filepath.Join(dir, "tmp"), "names", audit.StreamUsed))
}

func TestRecover_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := Recover(dir, config.SourceConfig{Name: "x", Type: "Queue"}, Options{})
	assert.Error(t, err)

	_, err = Recover(dir, config.SourceConfig{Name: "missing", Type: "CSV"}, Options{})
	assert.Error(t, err)
}

func TestRecoverAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.dat"), "1\n")
	writeFile(t, filepath.Join(dir, "b.dat"), "r1\nr2\n")
	writeTrail(t, dir, "b", audit.StreamUsed, used("r1")...)

	decls := []config.SourceConfig{
		{Name: "a", Type: "Counter"},
		{Name: "b", Type: "CSV"},
		{Name: "c", Type: "CSV"},
	}
	results, err := RecoverAll(dir, decls, Options{Now: fixedClock})
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Replayable)
	assert.Equal(t, 1, results[1].Consumed)
	assert.Equal(t, "r2\n", readFile(t, filepath.Join(dir, "b.dat")))
}

func TestList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "accounts.dat"), "# header\na\nb\n")
	writeFile(t, filepath.Join(dir, "users.dat"), "[g1]\nu1\nu2\nu3\n[g2]\nsolo\n")
	writeFile(t, filepath.Join(dir, "names.dat"), "k2:v2\nk1:v1\n")
	writeFile(t, filepath.Join(dir, "seq.dat"), "7\n")

	tests := []struct {
		decl config.SourceConfig
		want []string
	}{
		{config.SourceConfig{Name: "accounts", Type: "CSV"}, []string{"# header\na\nb\n"}},
		{config.SourceConfig{Name: "users", Type: "Keyed"}, []string{
			"[g1]\nu1\n...\nu3\n# 3 records\n",
			"[g2]\nsolo\n# 1 records\n",
		}},
		{config.SourceConfig{Name: "names", Type: "Hashed"}, []string{"k1:v1\nk2:v2\n"}},
		{config.SourceConfig{Name: "seq", Type: "Sequence"}, []string{"7\n"}},
		{config.SourceConfig{Name: "ids", Type: "Indexer"}, []string{"1\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.decl.Name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, List(&buf, dir, tt.decl))
			out := buf.String()
			assert.True(t, strings.HasPrefix(out, "# "+tt.decl.Name+" ("), out)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}

	// Listing never creates trails.
	assert.NoDirExists(t, filepath.Join(dir, "tmp"))
}
