package text

// Protocol tokens.
const (
	CRLF  = "\r\n"
	Space = " "

	// EndMarker terminates retrieval and stats replies.
	EndMarker = "END"

	// ValuePrefix starts an item header: VALUE <key> <flags> <bytes> [<cas unique>]
	ValuePrefix = "VALUE"

	// StatPrefix starts a stats line: STAT <name> <value>
	StatPrefix = "STAT"

	// NoReplyToken asks the server not to answer a command.
	NoReplyToken = "noreply"
)

// Error reply prefixes sent by the server.
const (
	ErrorGeneric      = "ERROR"
	ErrorClientPrefix = "CLIENT_ERROR"
	ErrorServerPrefix = "SERVER_ERROR"
)

// Single-line reply tokens.
const (
	Stored    = "STORED"
	NotStored = "NOT_STORED"
	Exists    = "EXISTS"
	NotFound  = "NOT_FOUND"
	Deleted   = "DELETED"
	Touched   = "TOUCHED"
	OK        = "OK"
)

// Key constraints.
const (
	MinKeyLength = 1
	MaxKeyLength = 250
)

// MaxValueLength is the largest item memcached can be configured to hold
// (-I 1024m). Larger VALUE headers are rejected.
const MaxValueLength = 1 << 30
