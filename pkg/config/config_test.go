package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterlharding/dserver/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dserver.yaml", `
environment: PERF
server:
  tcpPort: 9600
  readTimeout: 30s
  rateLimit: 50
  rateBurst: 10
flush:
  interval: 5m
audit:
  sync: true
  mqtt:
    broker: tcp://localhost:1883
sources:
  - name: accounts
    type: CSV
  - name: addresses
    type: keyed
    tagDelimiter: "="
  - name: ids
    type: Indexer
    start: 100
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "PERF", cfg.Environment)
	assert.Equal(t, 9600, cfg.Server.TCPPort)
	assert.Equal(t, DefaultHTTPPort, cfg.Server.HTTPPort, "unset fields keep defaults")
	assert.Equal(t, DefaultMaxMessageSize, cfg.Server.MaxMessageSize)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Flush.Interval)
	assert.True(t, cfg.Flush.Enabled())
	assert.True(t, cfg.Audit.Sync)
	require.NotNil(t, cfg.Audit.MQTT)
	assert.Equal(t, "tcp://localhost:1883", cfg.Audit.MQTT.Broker)

	require.Len(t, cfg.Sources, 3)
	typ, err := cfg.Sources[1].SourceType()
	require.NoError(t, err)
	assert.Equal(t, source.TypeKeyed, typ)
	assert.Equal(t, "=", cfg.Sources[1].Options().TagDelimiter)
	assert.Equal(t, ",", cfg.Sources[1].Options().Delimiter)
	assert.Equal(t, int64(100), cfg.Sources[2].Options().Start)
	assert.Equal(t, int64(source.DefaultStart), cfg.Sources[0].Options().Start)
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = LoadFromFile(writeFile(t, dir, "empty.yaml", "  \n"))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = LoadFromFile(writeFile(t, dir, "bad.yaml", "sources: [\n"))
	assert.ErrorIs(t, err, ErrInvalidYAML)

	_, err = LoadFromFile(writeFile(t, dir, "unknown.yaml", "bogus: 1\n"))
	assert.ErrorIs(t, err, ErrInvalidYAML)

	_, err = LoadFromFile(dir)
	assert.Error(t, err)
}

func TestParseYAML_Validation(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"duplicate source", "sources:\n  - {name: a, type: CSV}\n  - {name: a, type: Counter}\n", "sources[1].name"},
		{"missing name", "sources:\n  - {type: CSV}\n", "sources[0].name"},
		{"pipe in name", "sources:\n  - {name: 'a|b', type: CSV}\n", "sources[0].name"},
		{"unknown type", "sources:\n  - {name: a, type: Tree}\n", "sources[0].type"},
		{"port range", "server:\n  tcpPort: 70000\n", "server.tcpPort"},
		{"same ports", "server:\n  tcpPort: 8000\n  httpPort: 8000\n", "server.httpPort"},
		{"negative interval", "flush:\n  interval: -1s\n", "flush.interval"},
		{"interval and cron", "flush:\n  interval: 1m\n  cron: '*/5 * * * *'\n", "flush"},
		{"mqtt without broker", "audit:\n  mqtt:\n    topic: x\n", "audit.mqtt.broker"},
		{"burst", "server:\n  rateLimit: 10\n  rateBurst: 0\n", "server.rateBurst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.yaml))
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestParseINI(t *testing.T) {
	ini := `# dserver configuration
[Config]
Port=9579
HTTPPort = 8080
Environment=SVT

[Data]
Description=accounts:CSV:{'delimiter': ','}
Description=addresses:Keyed:{"tag_delimiter": "=", }
Description=ids:Indexer:{'start': 500}
Description=runs:Counter:{}
Description=seq:Sequence
`
	cfg, err := ParseINI(strings.NewReader(ini))
	require.NoError(t, err)

	assert.Equal(t, 9579, cfg.Server.TCPPort)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "SVT", cfg.Environment)
	require.Len(t, cfg.Sources, 5)

	assert.Equal(t, SourceConfig{Name: "accounts", Type: "CSV", Delimiter: ","}, cfg.Sources[0])
	assert.Equal(t, "=", cfg.Sources[1].TagDelimiter)
	assert.Equal(t, int64(500), cfg.Sources[2].Options().Start)
	assert.Equal(t, "runs", cfg.Sources[3].Name)
	assert.Equal(t, "Sequence", cfg.Sources[4].Type)
}

func TestParseINI_Errors(t *testing.T) {
	_, err := ParseINI(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = ParseINI(strings.NewReader("[Config]\nPort=abc\n"))
	assert.ErrorIs(t, err, ErrInvalidINI)

	_, err = ParseINI(strings.NewReader("[Config]\njunk\n"))
	assert.ErrorIs(t, err, ErrInvalidINI)

	_, err = ParseINI(strings.NewReader("[Data]\nDescription=x:CSV:{'delimiter': __import__('os')}\n"))
	var attrErr *AttributeError
	require.ErrorAs(t, err, &attrErr)
	assert.Equal(t, 2, attrErr.Line)
}

func TestLoadFromFile_INIByExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dserver.ini", "[Data]\nDescription=accounts:CSV:{}\n")
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultEnvironment, cfg.Environment)
	assert.Len(t, cfg.Sources, 1)
}

func TestParseAttributes(t *testing.T) {
	start := func(n int64) *int64 { return &n }

	tests := []struct {
		in   string
		want SourceConfig
	}{
		{"", SourceConfig{}},
		{"{}", SourceConfig{}},
		{"{ }", SourceConfig{}},
		{`{'delimiter': '|'}`, SourceConfig{Delimiter: "|"}},
		{`{delimiter: "\t", TagDelimiter: '::'}`, SourceConfig{Delimiter: "\t", TagDelimiter: "::"}},
		{`{'tagDelimiter': '\'', 'Start': -3,}`, SourceConfig{TagDelimiter: "'", Start: start(-3)}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAttributes(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAttributes_Rejects(t *testing.T) {
	for _, in := range []string{
		"delimiter",
		"{",
		"{'delimiter' ','}",
		"{'delimiter': ','",
		"{'colour': 'red'}",
		"{'delimiter': 1}",
		"{'start': '1'}",
		"{'delimiter': ''}",
		"{'delimiter': ',', 'delimiter': ';'}",
		"{'delimiter': ','} extra",
		"{'delimiter': os.sep}",
		`{'delimiter': '\q'}`,
		"{'start': 99999999999999999999}",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseAttributes(in)
			var attrErr *AttributeError
			assert.ErrorAs(t, err, &attrErr)
		})
	}
}

func TestResolveDataDir(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	assert.Equal(t, "DATA", ResolveDataDir(""))

	t.Setenv(EnvDataDir, "/srv/dserver")
	assert.Equal(t, "/srv/dserver", ResolveDataDir(""))
	assert.Equal(t, "/tmp/data", ResolveDataDir("/tmp/data"))
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	_, err := Locate(dir)
	assert.ErrorIs(t, err, ErrFileNotFound)

	writeFile(t, dir, LegacyFileName, "[Config]\n")
	path, err := Locate(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, LegacyFileName), path)

	writeFile(t, dir, DefaultFileName, "sources: []\n")
	path, err = Locate(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultFileName), path)
}

func TestSourceDir(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("data", "SVT"), cfg.SourceDir("data"))
	cfg.Environment = ""
	assert.Equal(t, "data", cfg.SourceDir("data"))
}
