package source

import (
	"strconv"
	"strings"

	"github.com/peterlharding/dserver/pkg/audit"
)

// ReplayResult summarises what a replay changed.
type ReplayResult struct {
	// Appended counts stored records that were missing from the payload.
	Appended int `json:"appended"`

	// Consumed counts used records removed from the payload, or series
	// advanced past an issued value.
	Consumed int `json:"consumed"`
}

// Changed reports whether the replay altered the payload.
func (r ReplayResult) Changed() bool {
	return r.Appended > 0 || r.Consumed > 0
}

// Replayer reconciles a freshly loaded source with its trails so that
// nothing written before a crash is lost and nothing handed out is handed
// out again.
type Replayer interface {
	Replay(used, stored []audit.Entry) ReplayResult
}

// KeyedTrails reports whether the trails of typ carry a key qualifier.
func KeyedTrails(typ Type) (used, stored bool) {
	switch typ {
	case TypeKeyed:
		return true, true
	case TypeHashed, TypeIndexed, TypeKeyedSequence, TypeBarcodes:
		return true, false
	default:
		return false, false
	}
}

// isReplyToken reports whether a trail value records a failed read.
func isReplyToken(v string) bool {
	return len(v) > 1 && strings.HasPrefix(v, "*") && strings.HasSuffix(v, "*")
}

// restore appends the stored records written after the group's last
// persisted record, then removes the used ones.
func restore(g *Group, stored, used []string) ReplayResult {
	var res ReplayResult

	start := 0
	if last, ok := g.Last(); ok {
		for i := len(stored) - 1; i >= 0; i-- {
			if stored[i] == last {
				start = i + 1
				break
			}
		}
	}
	for _, r := range stored[start:] {
		g.Append(r)
		res.Appended++
	}

	for _, u := range used {
		if isReplyToken(u) {
			continue
		}
		if g.remove(u) {
			res.Consumed++
		}
	}
	return res
}

func (l *List) Replay(used, stored []audit.Entry) ReplayResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return restore(l.records, values(stored), values(used))
}

func values(entries []audit.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out
}

func (k *Keyed) Replay(used, stored []audit.Entry) ReplayResult {
	k.mu.Lock()
	defer k.mu.Unlock()

	storedBy := make(map[string][]string)
	for _, e := range stored {
		storedBy[e.Key] = append(storedBy[e.Key], e.Value)
	}
	usedBy := make(map[string][]string)
	for _, e := range used {
		usedBy[e.Key] = append(usedBy[e.Key], e.Value)
	}

	var total ReplayResult
	for name := range storedBy {
		k.groupLocked(name)
	}
	for name, g := range k.groups {
		res := restore(g, storedBy[name], usedBy[name])
		total.Appended += res.Appended
		total.Consumed += res.Consumed
	}
	return total
}

// maxIssued returns the largest integer among values, ignoring tokens.
func maxIssued(vals []string) (int64, bool) {
	var (
		best  int64
		found bool
	)
	for _, v := range vals {
		if isReplyToken(v) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			continue
		}
		if !found || n > best {
			best, found = n, true
		}
	}
	return best, found
}

func (s *Sequence) Replay(used, _ []audit.Entry) ReplayResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := maxIssued(values(used)); ok && n+1 > s.value {
		s.value = n + 1
		return ReplayResult{Consumed: 1}
	}
	return ReplayResult{}
}

func (ks *KeyedSequence) Replay(used, _ []audit.Entry) ReplayResult {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	byKey := make(map[string][]string)
	for _, e := range used {
		byKey[e.Key] = append(byKey[e.Key], e.Value)
	}

	var res ReplayResult
	for key, vals := range byKey {
		n, ok := maxIssued(vals)
		if !ok {
			continue
		}
		if cur, exists := ks.values[key]; !exists || n+1 > cur {
			ks.values[key] = n + 1
			res.Consumed++
		}
	}
	return res
}

func (bc *Barcodes) Replay(used, _ []audit.Entry) ReplayResult {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	var res ReplayResult
	for _, e := range used {
		if isReplyToken(e.Value) {
			continue
		}
		g, ok := bc.groups[e.Key]
		if !ok {
			parsed, err := ParseBarcodeKey(e.Key)
			if err != nil {
				continue
			}
			g = parsed
		}
		serial, ok := g.SerialOf(e.Value)
		if !ok || serial+1 <= g.Serial {
			continue
		}
		g.Serial = serial + 1
		bc.groups[e.Key] = g
		res.Consumed++
	}
	return res
}
