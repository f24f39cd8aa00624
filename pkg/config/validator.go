package config

import (
	"fmt"
	"strings"

	"github.com/peterlharding/dserver/pkg/source"
)

// ValidationError describes an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Validate checks the configuration. It stops at the first problem.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Flush.Validate(); err != nil {
		return err
	}
	if c.Audit.MQTT != nil && c.Audit.MQTT.Broker == "" {
		return &ValidationError{Field: "audit.mqtt.broker", Message: "broker is required when mqtt is configured"}
	}

	names := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if err := s.Validate(field); err != nil {
			return err
		}
		if names[s.Name] {
			return &ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate source name %q", s.Name)}
		}
		names[s.Name] = true
	}
	return nil
}

// Validate checks ports and limits.
func (s *ServerConfig) Validate() error {
	if s.TCPPort < 0 || s.TCPPort > 65535 {
		return &ValidationError{Field: "server.tcpPort", Message: fmt.Sprintf("port %d out of range 0-65535", s.TCPPort)}
	}
	if s.HTTPPort < 0 || s.HTTPPort > 65535 {
		return &ValidationError{Field: "server.httpPort", Message: fmt.Sprintf("port %d out of range 0-65535", s.HTTPPort)}
	}
	if s.TCPPort != 0 && s.TCPPort == s.HTTPPort {
		return &ValidationError{Field: "server.httpPort", Message: "must differ from tcpPort"}
	}
	if s.MaxMessageSize < 0 {
		return &ValidationError{Field: "server.maxMessageSize", Message: "must not be negative"}
	}
	if s.ReadTimeout < 0 {
		return &ValidationError{Field: "server.readTimeout", Message: "must not be negative"}
	}
	if s.MaxConnections < 0 {
		return &ValidationError{Field: "server.maxConnections", Message: "must not be negative"}
	}
	if s.RateLimit < 0 {
		return &ValidationError{Field: "server.rateLimit", Message: "must not be negative"}
	}
	if s.RateLimit > 0 && s.RateBurst < 1 {
		return &ValidationError{Field: "server.rateBurst", Message: "must be at least 1 when rateLimit is set"}
	}
	return nil
}

// Validate checks the flush schedule.
func (f *FlushConfig) Validate() error {
	if f.Interval < 0 {
		return &ValidationError{Field: "flush.interval", Message: "must not be negative"}
	}
	if f.Interval > 0 && f.Cron != "" {
		return &ValidationError{Field: "flush", Message: "interval and cron are mutually exclusive"}
	}
	return nil
}

// Validate checks one source declaration. field prefixes error fields.
func (s *SourceConfig) Validate(field string) error {
	if s.Name == "" {
		return &ValidationError{Field: field + ".name", Message: "name is required"}
	}
	if strings.ContainsAny(s.Name, "|/\\ \t") {
		return &ValidationError{Field: field + ".name", Message: fmt.Sprintf("name %q must not contain '|', path separators or spaces", s.Name)}
	}
	if _, err := source.ParseType(s.Type); err != nil {
		return &ValidationError{Field: field + ".type", Message: err.Error()}
	}
	return nil
}
