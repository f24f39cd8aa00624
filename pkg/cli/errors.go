package cli

import "errors"

// Common CLI errors
var (
	ErrServerNotRunning = errors.New("dserver is not running - start with: dserver serve")
	ErrServerRunning    = errors.New("dserver is running on this data directory - stop it first or pass --force")
	ErrNoSourcesGiven   = errors.New("no sources given - name them or pass --all")
	ErrUnknownSource    = errors.New("unknown source")
)
