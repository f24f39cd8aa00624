package source

import (
	"fmt"
	"strings"
)

// Type names a source variant as written in the configuration.
type Type string

// Source types.
const (
	TypeList          Type = "CSV"
	TypeSequence      Type = "Sequence"
	TypeIndexer       Type = "Indexer"
	TypeCounter       Type = "Counter"
	TypeHashed        Type = "Hashed"
	TypeIndexed       Type = "Indexed"
	TypeKeyed         Type = "Keyed"
	TypeKeyedSequence Type = "KeyedSequence"
	TypeBarcodes      Type = "Barcodes"
)

// Types lists every supported type in display order.
var Types = []Type{
	TypeList, TypeSequence, TypeIndexer, TypeCounter, TypeHashed,
	TypeIndexed, TypeKeyed, TypeKeyedSequence, TypeBarcodes,
}

// ParseType resolves a configured type name. Matching is case-insensitive
// and "List" is accepted for CSV.
func ParseType(s string) (Type, error) {
	name := strings.TrimSpace(s)
	if strings.EqualFold(name, "list") {
		return TypeList, nil
	}
	for _, t := range Types {
		if strings.EqualFold(name, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown source type %q", s)
}

// Defaults for Options.
const (
	DefaultDelimiter    = ","
	DefaultTagDelimiter = ":"
	DefaultStart        = 1
)

// Options are the per-source attributes from the configuration.
type Options struct {
	// Delimiter separates fields inside a record. The server does not split
	// records; it is reported to clients at registration.
	Delimiter string

	// TagDelimiter separates key and value in Hashed, KeyedSequence and
	// Barcodes files.
	TagDelimiter string

	// Start is the value an Indexer begins at on every load.
	Start int64
}

// DefaultOptions returns the options used for attributes that are not set.
func DefaultOptions() Options {
	return Options{
		Delimiter:    DefaultDelimiter,
		TagDelimiter: DefaultTagDelimiter,
		Start:        DefaultStart,
	}
}

func (o Options) withDefaults() Options {
	if o.Delimiter == "" {
		o.Delimiter = DefaultDelimiter
	}
	if o.TagDelimiter == "" {
		o.TagDelimiter = DefaultTagDelimiter
	}
	return o
}

// Attributes is the metadata returned to structured clients at registration.
type Attributes struct {
	Type      Type   `json:"type"`
	Delimiter string `json:"delimiter"`
	Size      int    `json:"size"`
}
