package protocol

import "errors"

// Reply tokens owned by the dispatcher. Source failures carry their own
// tokens (see source.Error).
const (
	TokenBadHandle         = "*BAD*HANDLE*"
	TokenBadMessage        = "*BAD*MESSAGE*"
	TokenUnknownSourceType = "*UNKNOWN*SOURCE*TYPE*"
	TokenError             = "*ERROR*"

	// ReplyNone answers an unrecognised verb.
	ReplyNone = "None"

	// ReplyStored and ReplyNotStored answer STOC and STOK.
	ReplyStored    = "1"
	ReplyNotStored = "0"

	// ReplyOK answers INIT from bare clients and the legacy REGK/REGI.
	ReplyOK = "0"
)

// WireError is an error with a wire representation.
type WireError interface {
	error
	Token() string
}

// ToReply renders err as a reply token. Errors without a token become
// *ERROR*.
func ToReply(err error) string {
	var te WireError
	if errors.As(err, &te) {
		return te.Token()
	}
	return TokenError
}

// IsToken reports whether a reply is an error token rather than a value.
func IsToken(reply string) bool {
	return len(reply) > 1 && reply[0] == '*' && reply[len(reply)-1] == '*'
}
