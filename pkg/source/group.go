package source

// emptyCursor marks a group that has never held a record.
const emptyCursor = -1

// Group is a named, ordered list of records with a consumption cursor.
// Records before the cursor have been handed out.
type Group struct {
	Name     string
	Records  []string
	Comments []string

	cursor int
}

// NewGroup creates an empty group.
func NewGroup(name string) *Group {
	return &Group{Name: name, cursor: emptyCursor}
}

// rewind positions the cursor on the first record, or marks the group
// empty when it has none.
func (g *Group) rewind() {
	if len(g.Records) > 0 {
		g.cursor = 0
	} else {
		g.cursor = emptyCursor
	}
}

// Append adds a record at the end.
func (g *Group) Append(record string) {
	g.Records = append(g.Records, record)
	if g.cursor == emptyCursor {
		g.cursor = 0
	}
}

// Next returns the record under the cursor and advances it. ok is false
// once every record has been handed out.
func (g *Group) Next() (record string, ok bool) {
	if g.cursor < 0 || g.cursor >= len(g.Records) {
		return "", false
	}
	record = g.Records[g.cursor]
	g.cursor++
	return record, true
}

// Random returns any record, consumed or not, without moving the cursor.
func (g *Group) Random(intn func(int) int) (record string, ok bool) {
	if len(g.Records) == 0 {
		return "", false
	}
	return g.Records[intn(len(g.Records))], true
}

// Cursor returns the index of the next record to hand out, or -1 for a
// group that has never held a record.
func (g *Group) Cursor() int {
	return g.cursor
}

// Remaining returns the records not yet handed out.
func (g *Group) Remaining() []string {
	if g.cursor < 0 || g.cursor >= len(g.Records) {
		return nil
	}
	return g.Records[g.cursor:]
}

// Last returns the last record held, consumed or not.
func (g *Group) Last() (string, bool) {
	if len(g.Records) == 0 {
		return "", false
	}
	return g.Records[len(g.Records)-1], true
}

// remove drops the first remaining occurrence of record.
func (g *Group) remove(record string) bool {
	if g.cursor < 0 {
		return false
	}
	for i := g.cursor; i < len(g.Records); i++ {
		if g.Records[i] == record {
			g.Records = append(g.Records[:i], g.Records[i+1:]...)
			return true
		}
	}
	return false
}
