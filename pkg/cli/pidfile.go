package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// PIDFileName is the PID file written into the data directory.
const PIDFileName = "dserver.pid"

// PIDFile contains process information for a running dserver instance.
type PIDFile struct {
	PID         int           `json:"pid"`
	StartTime   time.Time     `json:"startTime"`
	Version     string        `json:"version"`
	Commit      string        `json:"commit,omitempty"`
	DataDir     string        `json:"dataDir"`
	Environment string        `json:"environment,omitempty"`
	Config      string        `json:"config,omitempty"`
	Transports  TransportInfo `json:"transports"`
	Sources     int           `json:"sources"`
}

// TransportInfo records where the transports listen.
type TransportInfo struct {
	TCP  ListenerInfo `json:"tcp"`
	HTTP ListenerInfo `json:"http"`
}

// ListenerInfo describes one listener.
type ListenerInfo struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// listenerInfo converts a bound address. A nil address is a disabled
// transport.
func listenerInfo(addr net.Addr) ListenerInfo {
	if addr == nil {
		return ListenerInfo{}
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ListenerInfo{Enabled: true}
	}
	p, _ := strconv.Atoi(port)
	return ListenerInfo{Enabled: true, Host: host, Port: p}
}

// DefaultPIDPath returns the PID file location for a data directory.
func DefaultPIDPath(dataDir string) string {
	return filepath.Join(dataDir, PIDFileName)
}

// WritePIDFile writes the PID file to the specified path.
// It creates the parent directory if it doesn't exist.
func WritePIDFile(path string, info *PIDFile) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal PID file: %w", err)
	}

	// Write atomically by writing to temp file first
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename PID file: %w", err)
	}
	return nil
}

// ReadPIDFile reads and parses the PID file from the specified path.
func ReadPIDFile(path string) (*PIDFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("PID file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read PID file: %w", err)
	}

	var info PIDFile
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse PID file: %w", err)
	}
	return &info, nil
}

// RemovePIDFile removes the PID file at the specified path.
func RemovePIDFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning checks if the process with the stored PID is still running.
func (p *PIDFile) IsRunning() bool {
	if p.PID <= 0 {
		return false
	}
	return checkProcessRunning(p.PID)
}

// Uptime returns the duration since the process started.
func (p *PIDFile) Uptime() time.Duration {
	if p.StartTime.IsZero() {
		return 0
	}
	return time.Since(p.StartTime)
}

// FormatUptime returns a human-readable uptime string.
func (p *PIDFile) FormatUptime() string {
	return formatDuration(p.Uptime())
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if hours >= 24 {
		days := hours / 24
		hours = hours % 24
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// TCPAddr returns the address clients dial, or "" when TCP is disabled.
func (p *PIDFile) TCPAddr() string {
	return p.Transports.TCP.dialAddr()
}

// HTTPURL returns the base URL of the HTTP transport, or "" when it is
// disabled.
func (p *PIDFile) HTTPURL() string {
	addr := p.Transports.HTTP.dialAddr()
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

func (l ListenerInfo) dialAddr() string {
	if !l.Enabled {
		return ""
	}
	host := l.Host
	if host == "" || host == "::" || host == "0.0.0.0" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(l.Port))
}
