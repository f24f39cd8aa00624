// Package source implements the file-backed datasets served by dserver.
//
// A source is loaded from <dir>/<name>.dat when the server starts, is
// mutated only through the read and write operations of its type, and is
// written back by Flush. Every read appends a line to <dir>/tmp/<name>.used
// and every write a line to <dir>/tmp/<name>.stored before the call
// returns.
//
// The supported types are:
//
//   - CSV (List): records handed out in file order; new records appended.
//   - Sequence: an integer incremented on each read and persisted.
//   - Indexer: an integer incremented on each read, reset to its start
//     value on every load.
//   - Counter: an integer constant for the run, persisted plus one.
//   - Hashed: key to value lookup.
//   - Indexed: lookup by position.
//   - Keyed: named groups of records, each consumed in order.
//   - KeyedSequence: an integer per key.
//   - Barcodes: checksummed barcode series per PREFIX-RANGE-COUNTRY key.
//
// Failed reads return a *Error whose Token is the reply sent to clients
// and the value recorded in the used trail.
package source
