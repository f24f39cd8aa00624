// Package cli provides the command-line interface for dserver.
//
// The cli package implements the commands for running and maintaining a
// data server:
//   - serve: Load the sources of a data directory and serve them
//   - stop: Stop a running server through its PID file
//   - status: Show the state of a running server
//   - validate: Load every declared source without serving
//   - list: Print the current contents of sources
//   - recover: Replay trails into .dat files after a crash
//   - send: Send raw protocol requests to a server
//   - version: Show dserver version
//
// Every command resolves the data directory from --data-dir, then
// $DSERVER_DIR, then ./DATA. Commands that report results accept --json.
package cli
