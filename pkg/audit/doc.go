// Package audit records the append-only trails kept for every data source.
//
// Each source owns two trails: "used" receives one line per read and
// "stored" one line per write. A line has the form
//
//	YYYYMMDDHHMMSS - [key::]value
//
// where the key part is present only for keyed, hashed, indexed and
// barcode reads and for keyed writes. Lines are written unbuffered so
// that recovery tooling always sees every value that was handed out.
//
// # Logger Types
//
//   - FileLogger: appends lines to <dir>/<source>.<stream>
//   - MultiWriter: fans a line out to several loggers
//   - MQTTMirror: publishes each line to <topic>/<source>/<stream>
//   - NoOpLogger: discards everything, used for read-only loads
//
// # Thread Safety
//
// All logger implementations are safe for concurrent use. Ordering between
// concurrent writers to the same trail is the caller's responsibility;
// sources hold their own lock while logging.
package audit
