// Package protocol maps the dserver wire protocol onto source operations.
//
// A request is one string of pipe separated tokens, VERB|arg|arg..., and
// every request gets exactly one reply string. Failures never escape as
// errors: they are rendered as reply tokens such as *Exhausted* or
// *BAD*HANDLE*, so a misbehaving client cannot affect anyone else.
//
// # Verbs
//
//	INIT|<lang>                 negotiate the client flavour
//	REG|<name>                  resolve a source name to a handle
//	REGK|<handle>|<key>         accepted for old clients, replies 0
//	REGI|<handle>               accepted for old clients, replies 0
//	GETN|<handle>               next value (CSV, Sequence, Indexer, Counter)
//	GETK|<handle>|<group>       next record of a Keyed group
//	GETKR|<handle>|<group>      random record of a Keyed group
//	GETKS|<handle>|<key>        next integer of a KeyedSequence key
//	GETH|<handle>|<key>         Hashed lookup
//	GETI|<handle>|<index>       Indexed lookup
//	GETB|<handle>|<key>         next checksummed barcode
//	STOC|<handle>|<data>        append to a CSV source
//	STOK|<handle>|<group>|<data> append to a Keyed group
//
// Clients that announce themselves as Python or JSON receive structured
// (JSON) metadata from INIT and REG; all others receive bare values.
//
// # Sessions
//
// A Session carries the negotiated language for one connection. The TCP and
// WebSocket transports keep one per connection; HTTP creates one per
// request.
package protocol
