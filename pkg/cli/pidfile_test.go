package cli

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultPIDPath(t *testing.T) {
	path := DefaultPIDPath("/srv/DATA")
	if path != filepath.Join("/srv/DATA", "dserver.pid") {
		t.Errorf("unexpected PID path %s", path)
	}
}

func TestWriteAndReadPIDFile(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "nested", "test.pid")

	now := time.Now().Truncate(time.Second)
	info := &PIDFile{
		PID:         12345,
		StartTime:   now,
		Version:     "0.1.0",
		Commit:      "abc1234",
		DataDir:     "/srv/DATA",
		Environment: "SVT",
		Config:      "/srv/DATA/dserver.yaml",
		Transports: TransportInfo{
			TCP:  ListenerInfo{Enabled: true, Host: "0.0.0.0", Port: 9578},
			HTTP: ListenerInfo{Enabled: true, Host: "127.0.0.1", Port: 8000},
		},
		Sources: 12,
	}

	if err := WritePIDFile(pidPath, info); err != nil {
		t.Fatalf("WritePIDFile failed: %v", err)
	}
	if _, err := os.Stat(pidPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary PID file left behind")
	}

	readInfo, err := ReadPIDFile(pidPath)
	if err != nil {
		t.Fatalf("ReadPIDFile failed: %v", err)
	}
	if readInfo.PID != info.PID {
		t.Errorf("PID mismatch: got %d, want %d", readInfo.PID, info.PID)
	}
	if !readInfo.StartTime.Equal(info.StartTime) {
		t.Errorf("StartTime mismatch: got %v, want %v", readInfo.StartTime, info.StartTime)
	}
	if readInfo.Sources != 12 || readInfo.Environment != "SVT" {
		t.Errorf("unexpected contents: %+v", readInfo)
	}
	if got := readInfo.TCPAddr(); got != "localhost:9578" {
		t.Errorf("TCPAddr = %q", got)
	}
	if got := readInfo.HTTPURL(); got != "http://127.0.0.1:8000" {
		t.Errorf("HTTPURL = %q", got)
	}
}

func TestReadPIDFile_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := ReadPIDFile(filepath.Join(tmpDir, "missing.pid")); err == nil {
		t.Error("expected error for missing PID file")
	}

	bad := filepath.Join(tmpDir, "bad.pid")
	if err := os.WriteFile(bad, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPIDFile(bad); err == nil {
		t.Error("expected error for malformed PID file")
	}
}

func TestRemovePIDFile(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	if err := RemovePIDFile(pidPath); err != nil {
		t.Errorf("removing a missing PID file should not fail: %v", err)
	}

	if err := WritePIDFile(pidPath, &PIDFile{PID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := RemovePIDFile(pidPath); err != nil {
		t.Fatalf("RemovePIDFile failed: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file still exists")
	}
}

func TestPIDFile_IsRunning(t *testing.T) {
	if !(&PIDFile{PID: os.Getpid()}).IsRunning() {
		t.Error("current process should be running")
	}
	if (&PIDFile{PID: 0}).IsRunning() {
		t.Error("PID 0 should not be running")
	}
	if (&PIDFile{PID: 9999999}).IsRunning() {
		t.Error("PID 9999999 should not be running")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5*time.Minute + 30*time.Second, "5m 30s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{50*time.Hour + 10*time.Minute, "2d 2h 10m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}

	if got := (&PIDFile{}).FormatUptime(); got != "0s" {
		t.Errorf("zero start time uptime = %q", got)
	}
}

func TestListenerInfo(t *testing.T) {
	if got := listenerInfo(nil); got.Enabled {
		t.Error("nil address should be disabled")
	}

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9578}
	got := listenerInfo(addr)
	if !got.Enabled || got.Host != "127.0.0.1" || got.Port != 9578 {
		t.Errorf("unexpected listener info %+v", got)
	}
	if got.dialAddr() != "127.0.0.1:9578" {
		t.Errorf("dialAddr = %q", got.dialAddr())
	}
	if (ListenerInfo{Enabled: true, Host: "::", Port: 1}).dialAddr() != "localhost:1" {
		t.Error("wildcard host should dial localhost")
	}
}
