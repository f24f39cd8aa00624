package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrInvalidINI       = errors.New("invalid INI syntax")
	ErrEmptyFile        = errors.New("configuration file is empty")
)

// EnvDataDir names the environment variable consulted for the data directory.
const EnvDataDir = "DSERVER_DIR"

// ResolveDataDir returns dir if set, then $DSERVER_DIR, then ./DATA.
func ResolveDataDir(dir string) string {
	if dir != "" {
		return dir
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return env
	}
	return "DATA"
}

// Locate returns the configuration file to use in dataDir: dserver.yaml if
// present, else dserver.ini.
func Locate(dataDir string) (string, error) {
	for _, name := range []string{DefaultFileName, "dserver.yml", LegacyFileName} {
		path := filepath.Join(dataDir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no %s or %s in %s", ErrFileNotFound, DefaultFileName, LegacyFileName, dataDir)
}

// LoadFromFile reads and validates a configuration. The format is detected
// by extension: .yaml and .yml are YAML, anything else is legacy INI.
func LoadFromFile(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	var cfg *Config
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		cfg, err = ParseYAML(data)
	} else {
		cfg, err = ParseINI(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseYAML parses YAML bytes into a Config with validation. Unknown
// fields are rejected.
func ParseYAML(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// ParseINI parses the legacy dserver.ini format with validation.
//
// Recognised keys are Port, HTTPPort, Host and Environment in [Config], and
// Description=<name>:<type>:<attributes> in [Data]. Other keys are ignored.
func ParseINI(r io.Reader) (*Config, error) {
	cfg := Default()

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: expected key=value", ErrInvalidINI, lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: invalid port %q", ErrInvalidINI, lineNo, value)
			}
			cfg.Server.TCPPort = port
		case "httpport":
			port, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: invalid port %q", ErrInvalidINI, lineNo, value)
			}
			cfg.Server.HTTPPort = port
		case "host":
			cfg.Server.Host = value
		case "environment":
			cfg.Environment = value
		case "description":
			src, err := parseDescription(value)
			if err != nil {
				var attrErr *AttributeError
				if errors.As(err, &attrErr) {
					attrErr.Line = lineNo
					return nil, attrErr
				}
				return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidINI, lineNo, err)
			}
			cfg.Sources = append(cfg.Sources, src)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if lineNo == 0 {
		return nil, ErrEmptyFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// parseDescription splits <name>:<type>[:<attributes>].
func parseDescription(value string) (SourceConfig, error) {
	name, rest, ok := strings.Cut(value, ":")
	if !ok {
		return SourceConfig{}, fmt.Errorf("description %q: expected name:type:attributes", value)
	}
	typ, attrs, _ := strings.Cut(rest, ":")

	src, err := ParseAttributes(attrs)
	if err != nil {
		return SourceConfig{}, err
	}
	src.Name = strings.TrimSpace(name)
	src.Type = strings.TrimSpace(typ)
	return src, nil
}
