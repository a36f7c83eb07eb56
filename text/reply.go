package text

import "strings"

// ReplyKind describes the shape of a decoded reply.
type ReplyKind uint8

const (
	// ReplyNone is the reply of a noreply command, or a single-key retrieval
	// that missed.
	ReplyNone ReplyKind = iota
	// ReplyLine is a single reply line, such as STORED or 42.
	ReplyLine
	// ReplyValue is a single-key retrieval hit, unwrapped to its item.
	ReplyValue
	// ReplyValues is a multi-key retrieval: a key to item mapping.
	ReplyValues
	// ReplyLines is an ordered sequence of lines, such as a stats dump.
	ReplyLines
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyNone:
		return "none"
	case ReplyLine:
		return "line"
	case ReplyValue:
		return "value"
	case ReplyValues:
		return "values"
	case ReplyLines:
		return "lines"
	default:
		return "unknown"
	}
}

// Item is a retrieved value. CAS is only set for gets and gats.
type Item struct {
	Key   string
	Flags uint32
	Value any
	CAS   uint64
}

// Reply is a decoded server reply. Which field is set depends on Kind.
type Reply struct {
	Kind  ReplyKind
	Line  string
	Item  *Item
	Items map[string]Item
	Lines []string
}

// Value returns the natural value of the reply: the line for single-line
// replies, the item value for single-key hits, the items for multi-key
// retrievals, the lines for stats, and nil for ReplyNone.
func (r Reply) Value() any {
	switch r.Kind {
	case ReplyLine:
		return r.Line
	case ReplyValue:
		if r.Item == nil {
			return nil
		}
		return r.Item.Value
	case ReplyValues:
		return r.Items
	case ReplyLines:
		return r.Lines
	default:
		return nil
	}
}

// IsNone reports whether the reply carries no value.
func (r Reply) IsNone() bool {
	return r.Kind == ReplyNone
}

// StatsMap parses STAT <name> <value> lines into a map.
// Lines that do not follow that form are skipped.
func (r Reply) StatsMap() map[string]string {
	stats := make(map[string]string, len(r.Lines))
	for _, line := range r.Lines {
		rest, ok := strings.CutPrefix(line, StatPrefix+Space)
		if !ok {
			continue
		}
		name, value, _ := strings.Cut(rest, Space)
		if name == "" {
			continue
		}
		stats[name] = value
	}
	return stats
}
