package text

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pior/memcache-async/codec"
)

// Build validates args for the named command and encodes it.
//
// Positional arguments per command:
//
//	set|add|replace|append|prepend  key, value, [exptime=0], [noreply=false]
//	cas                             key, value, exptime, cas unique, [noreply]
//	get|gets                        key, [key...]
//	gat|gats                        exptime, key, [key...]
//	delete                          key, [noreply]
//	incr|decr                       key, delta, [noreply]
//	touch                           key, exptime, [noreply]
//	anything else                   written verbatim, separated by spaces
//
// Values are turned into (flags, payload) by c. Keys must pass ValidateKey;
// exptime, cas unique and delta must be integers (or decimal strings); noreply
// must be a bool. Any violation returns an *InvalidParamsError and no bytes.
func Build(c codec.Codec, name string, args ...any) (*Command, error) {
	if c == nil {
		c = codec.Default{}
	}

	kind := KindOf(name)
	switch {
	case kind.IsStorage():
		return buildStorage(c, kind, args)
	case kind == KindCas:
		return buildCas(c, args)
	case kind == KindGet || kind == KindGets:
		return buildGet(kind, args)
	case kind == KindGat || kind == KindGats:
		return buildGat(kind, args)
	case kind == KindDelete:
		return buildDelete(args)
	case kind == KindIncr || kind == KindDecr:
		return buildArithmetic(kind, args)
	case kind == KindTouch:
		return buildTouch(args)
	default:
		return buildPassThrough(kind, name, args)
	}
}

func invalid(cmd, field, reason string) *InvalidParamsError {
	return &InvalidParamsError{Command: cmd, Field: field, Reason: reason}
}

func checkArity(cmd string, args []any, min, max int, usage string) error {
	if len(args) < min {
		return invalid(cmd, "args", fmt.Sprintf("expected %s, got %d argument(s)", usage, len(args)))
	}
	if max >= 0 && len(args) > max {
		return invalid(cmd, "args", fmt.Sprintf("expected %s, got %d argument(s)", usage, len(args)))
	}
	return nil
}

func keyArg(cmd string, v any) (string, error) {
	var key string
	switch k := v.(type) {
	case string:
		key = k
	case []byte:
		key = string(k)
	default:
		return "", invalid(cmd, "key", fmt.Sprintf("must be a string, got %T", v))
	}

	if reason := ValidateKey(key); reason != "" {
		return "", invalid(cmd, "key", reason)
	}
	return key, nil
}

// signedArg formats an integer argument such as exptime.
func signedArg(cmd, field string, v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10), nil
	case int8:
		return strconv.FormatInt(int64(n), 10), nil
	case int16:
		return strconv.FormatInt(int64(n), 10), nil
	case int32:
		return strconv.FormatInt(int64(n), 10), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case uint, uint8, uint16, uint32, uint64:
		return unsignedArg(cmd, field, v)
	case string:
		if _, err := strconv.ParseInt(n, 10, 64); err != nil {
			return "", invalid(cmd, field, fmt.Sprintf("must be numeric, got %q", n))
		}
		return n, nil
	default:
		return "", invalid(cmd, field, fmt.Sprintf("must be numeric, got %T", v))
	}
}

// unsignedArg formats a non-negative integer argument such as a cas unique
// or an arithmetic delta.
func unsignedArg(cmd, field string, v any) (string, error) {
	switch n := v.(type) {
	case uint:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint64:
		return strconv.FormatUint(n, 10), nil
	case int, int8, int16, int32, int64:
		s, _ := signedArg(cmd, field, v)
		if strings.HasPrefix(s, "-") {
			return "", invalid(cmd, field, "must not be negative")
		}
		return s, nil
	case string:
		if _, err := strconv.ParseUint(n, 10, 64); err != nil {
			return "", invalid(cmd, field, fmt.Sprintf("must be numeric, got %q", n))
		}
		return n, nil
	default:
		return "", invalid(cmd, field, fmt.Sprintf("must be numeric, got %T", v))
	}
}

// noReplyArg reads the optional noreply flag at args[i].
func noReplyArg(cmd string, args []any, i int) (bool, error) {
	if len(args) <= i {
		return false, nil
	}
	b, ok := args[i].(bool)
	if !ok {
		return false, invalid(cmd, "noreply", fmt.Sprintf("must be a bool, got %T", args[i]))
	}
	return b, nil
}

type wireBuilder []byte

func (w *wireBuilder) token(s string) {
	if len(*w) > 0 {
		*w = append(*w, ' ')
	}
	*w = append(*w, s...)
}

func (w *wireBuilder) end() {
	*w = append(*w, CRLF...)
}

func (w *wireBuilder) data(payload []byte) {
	*w = append(*w, payload...)
	*w = append(*w, CRLF...)
}

func (w *wireBuilder) noReply(noreply bool) {
	if noreply {
		w.token(NoReplyToken)
	}
}

// <cmd> <key> <flags> <exptime> <bytes> [noreply]\r\n<data>\r\n
func buildStorage(c codec.Codec, kind Kind, args []any) (*Command, error) {
	name := kind.String()
	if err := checkArity(name, args, 2, 4, "key, value, [exptime], [noreply]"); err != nil {
		return nil, err
	}

	key, err := keyArg(name, args[0])
	if err != nil {
		return nil, err
	}

	exptime := "0"
	if len(args) > 2 {
		if exptime, err = signedArg(name, "exptime", args[2]); err != nil {
			return nil, err
		}
	}

	noreply, err := noReplyArg(name, args, 3)
	if err != nil {
		return nil, err
	}

	flags, payload, err := c.Serialize(args[1])
	if err != nil {
		return nil, &InvalidParamsError{Command: name, Field: "value", Err: err}
	}

	w := make(wireBuilder, 0, len(name)+len(key)+len(payload)+48)
	w.token(name)
	w.token(key)
	w.token(strconv.FormatUint(uint64(flags), 10))
	w.token(exptime)
	w.token(strconv.Itoa(len(payload)))
	w.noReply(noreply)
	w.end()
	w.data(payload)

	return &Command{
		Kind:         kind,
		Name:         name,
		Keys:         []string{key},
		Wire:         w,
		ExpectsReply: !noreply,
		SingleKey:    true,
	}, nil
}

// cas <key> <flags> <exptime> <bytes> <cas unique> [noreply]\r\n<data>\r\n
func buildCas(c codec.Codec, args []any) (*Command, error) {
	name := KindCas.String()
	if err := checkArity(name, args, 4, 5, "key, value, exptime, cas unique, [noreply]"); err != nil {
		return nil, err
	}

	key, err := keyArg(name, args[0])
	if err != nil {
		return nil, err
	}

	exptime, err := signedArg(name, "exptime", args[2])
	if err != nil {
		return nil, err
	}

	casUnique, err := unsignedArg(name, "cas", args[3])
	if err != nil {
		return nil, err
	}

	noreply, err := noReplyArg(name, args, 4)
	if err != nil {
		return nil, err
	}

	flags, payload, err := c.Serialize(args[1])
	if err != nil {
		return nil, &InvalidParamsError{Command: name, Field: "value", Err: err}
	}

	w := make(wireBuilder, 0, len(key)+len(payload)+64)
	w.token(name)
	w.token(key)
	w.token(strconv.FormatUint(uint64(flags), 10))
	w.token(exptime)
	w.token(strconv.Itoa(len(payload)))
	w.token(casUnique)
	w.noReply(noreply)
	w.end()
	w.data(payload)

	return &Command{
		Kind:         KindCas,
		Name:         name,
		Keys:         []string{key},
		Wire:         w,
		ExpectsReply: !noreply,
		SingleKey:    true,
	}, nil
}

func collectKeys(name string, args []any) ([]string, error) {
	keys := make([]string, 0, len(args))
	for _, arg := range args {
		key, err := keyArg(name, arg)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// get|gets <key>*\r\n
func buildGet(kind Kind, args []any) (*Command, error) {
	name := kind.String()
	if err := checkArity(name, args, 1, -1, "at least one key"); err != nil {
		return nil, err
	}

	keys, err := collectKeys(name, args)
	if err != nil {
		return nil, err
	}

	w := make(wireBuilder, 0, 8+len(keys)*16)
	w.token(name)
	for _, key := range keys {
		w.token(key)
	}
	w.end()

	return &Command{
		Kind:         kind,
		Name:         name,
		Keys:         keys,
		Wire:         w,
		ExpectsReply: true,
		MultiValue:   true,
		WantsCAS:     kind == KindGets,
		SingleKey:    len(keys) == 1,
	}, nil
}

// gat|gats <exptime> <key>*\r\n
func buildGat(kind Kind, args []any) (*Command, error) {
	name := kind.String()
	if err := checkArity(name, args, 2, -1, "exptime and at least one key"); err != nil {
		return nil, err
	}

	exptime, err := signedArg(name, "exptime", args[0])
	if err != nil {
		return nil, err
	}

	keys, err := collectKeys(name, args[1:])
	if err != nil {
		return nil, err
	}

	w := make(wireBuilder, 0, 24+len(keys)*16)
	w.token(name)
	w.token(exptime)
	for _, key := range keys {
		w.token(key)
	}
	w.end()

	return &Command{
		Kind:         kind,
		Name:         name,
		Keys:         keys,
		Wire:         w,
		ExpectsReply: true,
		MultiValue:   true,
		WantsCAS:     kind == KindGats,
		SingleKey:    len(keys) == 1,
	}, nil
}

// delete <key> [noreply]\r\n
func buildDelete(args []any) (*Command, error) {
	name := KindDelete.String()
	if err := checkArity(name, args, 1, 2, "key, [noreply]"); err != nil {
		return nil, err
	}

	key, err := keyArg(name, args[0])
	if err != nil {
		return nil, err
	}

	noreply, err := noReplyArg(name, args, 1)
	if err != nil {
		return nil, err
	}

	w := make(wireBuilder, 0, len(key)+24)
	w.token(name)
	w.token(key)
	w.noReply(noreply)
	w.end()

	return &Command{
		Kind:         KindDelete,
		Name:         name,
		Keys:         []string{key},
		Wire:         w,
		ExpectsReply: !noreply,
		SingleKey:    true,
	}, nil
}

// incr|decr <key> <delta> [noreply]\r\n
func buildArithmetic(kind Kind, args []any) (*Command, error) {
	name := kind.String()
	if err := checkArity(name, args, 2, 3, "key, delta, [noreply]"); err != nil {
		return nil, err
	}

	key, err := keyArg(name, args[0])
	if err != nil {
		return nil, err
	}

	delta, err := unsignedArg(name, "delta", args[1])
	if err != nil {
		return nil, err
	}

	noreply, err := noReplyArg(name, args, 2)
	if err != nil {
		return nil, err
	}

	w := make(wireBuilder, 0, len(key)+48)
	w.token(name)
	w.token(key)
	w.token(delta)
	w.noReply(noreply)
	w.end()

	return &Command{
		Kind:         kind,
		Name:         name,
		Keys:         []string{key},
		Wire:         w,
		ExpectsReply: !noreply,
		SingleKey:    true,
	}, nil
}

// touch <key> <exptime> [noreply]\r\n
func buildTouch(args []any) (*Command, error) {
	name := KindTouch.String()
	if err := checkArity(name, args, 2, 3, "key, exptime, [noreply]"); err != nil {
		return nil, err
	}

	key, err := keyArg(name, args[0])
	if err != nil {
		return nil, err
	}

	exptime, err := signedArg(name, "exptime", args[1])
	if err != nil {
		return nil, err
	}

	noreply, err := noReplyArg(name, args, 2)
	if err != nil {
		return nil, err
	}

	w := make(wireBuilder, 0, len(key)+48)
	w.token(name)
	w.token(key)
	w.token(exptime)
	w.noReply(noreply)
	w.end()

	return &Command{
		Kind:         KindTouch,
		Name:         name,
		Keys:         []string{key},
		Wire:         w,
		ExpectsReply: !noreply,
		SingleKey:    true,
	}, nil
}

// Pass-through commands (flush_all, version, verbosity, stats, ...) are not
// validated. A trailing noreply token, or quit, means the server stays silent.
func buildPassThrough(kind Kind, name string, args []any) (*Command, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalid("", "command", "command name is empty")
	}

	w := make(wireBuilder, 0, len(name)+len(args)*8+2)
	w.token(name)
	last := ""
	for _, arg := range args {
		last = formatArg(arg)
		w.token(last)
	}
	w.end()

	expectsReply := true
	if strings.EqualFold(name, "quit") || (len(args) > 0 && last == NoReplyToken) {
		expectsReply = false
	}

	return &Command{
		Kind:         kind,
		Name:         name,
		Wire:         w,
		ExpectsReply: expectsReply,
		MultiValue:   kind == KindStats,
	}, nil
}

func formatArg(v any) string {
	switch a := v.(type) {
	case string:
		return a
	case []byte:
		return string(a)
	case fmt.Stringer:
		return a.String()
	default:
		return fmt.Sprint(v)
	}
}
