package config

import (
	"path/filepath"
	"time"

	"github.com/peterlharding/dserver/pkg/source"
)

// Defaults.
const (
	DefaultEnvironment    = "SVT"
	DefaultTCPPort        = 9578
	DefaultHTTPPort       = 8000
	DefaultMaxMessageSize = 4096
	DefaultFileName       = "dserver.yaml"
	LegacyFileName        = "dserver.ini"
	DefaultMQTTTopic      = "dserver/audit"
	DefaultMQTTClientID   = "dserver"
)

// Config is the complete server configuration.
type Config struct {
	// Environment is the sub-directory of the data directory holding the
	// .dat files. Empty means the data directory itself.
	Environment string         `yaml:"environment"`
	Server      ServerConfig   `yaml:"server"`
	Flush       FlushConfig    `yaml:"flush"`
	Audit       AuditConfig    `yaml:"audit"`
	Sources     []SourceConfig `yaml:"sources"`
}

// ServerConfig configures the transports.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	TCPPort        int           `yaml:"tcpPort"`
	HTTPPort       int           `yaml:"httpPort"`
	MaxMessageSize int           `yaml:"maxMessageSize"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	RateLimit      float64       `yaml:"rateLimit"`
	RateBurst      int           `yaml:"rateBurst"`
	// MaxConnections caps concurrent TCP connections. 0 is unlimited.
	MaxConnections int `yaml:"maxConnections"`
}

// FlushConfig schedules periodic flushes. Sources are always flushed on
// shutdown.
type FlushConfig struct {
	Interval time.Duration `yaml:"interval"`
	Cron     string        `yaml:"cron"`
}

// Enabled reports whether a periodic flush is configured.
func (f FlushConfig) Enabled() bool {
	return f.Interval > 0 || f.Cron != ""
}

// AuditConfig configures the used/stored trails.
type AuditConfig struct {
	// Sync fsyncs each trail line.
	Sync bool        `yaml:"sync"`
	MQTT *MQTTConfig `yaml:"mqtt,omitempty"`
}

// MQTTConfig mirrors trail lines to an MQTT broker.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"clientId"`
}

// SourceConfig declares one source.
type SourceConfig struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	Delimiter    string `yaml:"delimiter,omitempty"`
	TagDelimiter string `yaml:"tagDelimiter,omitempty"`
	Start        *int64 `yaml:"start,omitempty"`
}

// Options converts the declaration to source options, filling defaults.
func (s SourceConfig) Options() source.Options {
	opts := source.DefaultOptions()
	if s.Delimiter != "" {
		opts.Delimiter = s.Delimiter
	}
	if s.TagDelimiter != "" {
		opts.TagDelimiter = s.TagDelimiter
	}
	if s.Start != nil {
		opts.Start = *s.Start
	}
	return opts
}

// SourceType parses the declared type.
func (s SourceConfig) SourceType() (source.Type, error) {
	return source.ParseType(s.Type)
}

// Default returns a configuration with default server settings and no
// sources.
func Default() *Config {
	return &Config{
		Environment: DefaultEnvironment,
		Server: ServerConfig{
			TCPPort:        DefaultTCPPort,
			HTTPPort:       DefaultHTTPPort,
			MaxMessageSize: DefaultMaxMessageSize,
			RateBurst:      1,
		},
	}
}

// SourceDir returns the directory holding the .dat files under dataDir.
func (c *Config) SourceDir(dataDir string) string {
	if c.Environment == "" {
		return dataDir
	}
	return filepath.Join(dataDir, c.Environment)
}

// Source returns the declaration with the given name.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}
