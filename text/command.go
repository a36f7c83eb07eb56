package text

import "strings"

// Kind identifies a text protocol command.
type Kind uint8

const (
	// KindOther is the pass-through variant: arguments are written verbatim
	// and the reply is a single line.
	KindOther Kind = iota
	KindSet
	KindAdd
	KindReplace
	KindAppend
	KindPrepend
	KindCas
	KindGet
	KindGets
	KindGat
	KindGats
	KindDelete
	KindIncr
	KindDecr
	KindTouch
	// KindStats is a pass-through command answered by a multi-line reply.
	KindStats
)

var kindNames = [...]string{
	KindOther:   "other",
	KindSet:     "set",
	KindAdd:     "add",
	KindReplace: "replace",
	KindAppend:  "append",
	KindPrepend: "prepend",
	KindCas:     "cas",
	KindGet:     "get",
	KindGets:    "gets",
	KindGat:     "gat",
	KindGats:    "gats",
	KindDelete:  "delete",
	KindIncr:    "incr",
	KindDecr:    "decr",
	KindTouch:   "touch",
	KindStats:   "stats",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// KindOf maps a command name to its Kind, case-insensitively.
// Unrecognized names map to KindOther.
func KindOf(name string) Kind {
	lower := strings.ToLower(name)
	for k, n := range kindNames {
		if Kind(k) != KindOther && n == lower {
			return Kind(k)
		}
	}
	return KindOther
}

// IsStorage reports whether k is set, add, replace, append or prepend.
func (k Kind) IsStorage() bool {
	switch k {
	case KindSet, KindAdd, KindReplace, KindAppend, KindPrepend:
		return true
	}
	return false
}

// IsRetrieval reports whether k is answered by VALUE items and END.
func (k Kind) IsRetrieval() bool {
	switch k {
	case KindGet, KindGets, KindGat, KindGats:
		return true
	}
	return false
}

// Command is an encoded, validated request. It is immutable once built.
type Command struct {
	Kind Kind

	// Name is the command verb as written on the wire.
	Name string

	// Keys holds the keys the command addresses, in argument order.
	Keys []string

	// Wire is the exact request bytes, including the data block for
	// storage commands.
	Wire []byte

	// ExpectsReply is false for noreply commands; the correlation queue skips
	// them without consuming bytes.
	ExpectsReply bool

	// MultiValue is true when the reply is a multi-line block ending with END.
	MultiValue bool

	// WantsCAS is true for gets and gats: items carry their cas unique.
	WantsCAS bool

	// SingleKey is true when a retrieval names exactly one key; the reply is
	// then unwrapped to that single item.
	SingleKey bool
}
