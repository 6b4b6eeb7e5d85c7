// Package protocol implements the wire format of the sonic search server:
// command framing, text quoting, response classification and field
// extraction. It has no knowledge of sockets or connection state, so the
// codec can be tested independently of any network plumbing.
//
// The protocol is line oriented: every request is a single line terminated
// by \n, and every response is a single line, except for the asynchronous
// QUERY/SUGGEST commands whose result arrives as a later EVENT line.
package protocol

import (
	"strconv"
	"strings"
)

// EncodeCommand frames a command and its arguments as one wire line.
//
// Absent optional arguments must be passed as empty strings, not omitted:
// empty tokens are still joined with single spaces so that argument
// positions stay stable on the wire.
func EncodeCommand(verb string, args ...string) string {
	return verb + " " + strings.Join(args, " ") + "\n"
}

// Quote wraps free text in double quotes for use as a command argument.
// Embedded double quotes are escaped and embedded newlines are collapsed
// to single spaces, since a raw newline would corrupt the line framing.
// Empty text yields the empty quoted string `""`.
func Quote(text string) string {
	if text == "" {
		return `""`
	}
	text = strings.ReplaceAll(text, `"`, `\"`)
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return `"` + text + `"`
}

// Unquote reverses Quote, minus the newline collapsing which is lossy.
// It is mainly useful in tests.
func Unquote(text string) string {
	text = strings.TrimPrefix(text, `"`)
	text = strings.TrimSuffix(text, `"`)
	return strings.ReplaceAll(text, `\"`, `"`)
}

// FormatOption renders an optional modifier like LIMIT(10) or LANG(eng).
// An empty value yields an empty token, which EncodeCommand still joins
// with spaces so the argument positions stay stable.
func FormatOption(name, value string) string {
	if value == "" {
		return ""
	}
	return name + "(" + value + ")"
}

// FormatOptionInt renders an optional numeric modifier. Values <= 0 are
// treated as absent.
func FormatOptionInt(name string, value int) string {
	if value <= 0 {
		return ""
	}
	return name + "(" + strconv.Itoa(value) + ")"
}
