package protocol

import (
	"strconv"
	"strings"
)

// Kind classifies a response line.
type Kind int

const (
	// KindRaw covers HELP output and any unrecognized non-error line.
	KindRaw Kind = iota
	KindOK
	KindPong
	KindResult
	KindPending
	KindEvent
	KindStarted
	KindEnded
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindPong:
		return "pong"
	case KindResult:
		return "result"
	case KindPending:
		return "pending"
	case KindEvent:
		return "event"
	case KindStarted:
		return "started"
	case KindEnded:
		return "ended"
	case KindError:
		return "error"
	default:
		return "raw"
	}
}

// Response is a classified server line. Raw always holds the full line with
// the trailing newline stripped; the other fields are populated according
// to Kind.
type Response struct {
	Kind Kind
	Raw  string

	// Count is the integer of a RESULT line.
	Count int

	// Token is the correlation token of a PENDING or EVENT line.
	Token string

	// Event is the event kind of an EVENT line: QUERY or SUGGEST.
	Event string

	// IDs is the ordered id list of an EVENT line.
	IDs []string

	// Channel, Protocol and Buffer are the negotiated values of a STARTED line.
	Channel  Channel
	Protocol int
	Buffer   int

	// Err is set for ERR lines. It must never be swallowed: callers surface
	// it as the failure reason of the command that produced it.
	Err error
}

// OK reports whether the response is one of the boolean-true sentinels.
func (r *Response) OK() bool {
	return r.Kind == KindOK || r.Kind == KindPong
}

// IsError reports whether line is an error response.
func IsError(line string) bool {
	return strings.HasPrefix(line, ErrPrefix)
}

// TrimLine strips the line terminator from a wire line.
func TrimLine(line string) string {
	return strings.TrimRight(line, "\r\n")
}

// Classify parses one response line into a Response.
//
// ERR lines yield a Response with Err set (never an empty success value).
// A Go error is returned only when a structurally recognized line is
// malformed, e.g. a STARTED line without protocol(N)/buffer(N) or a
// PENDING line without a token; those are protocol-contract violations,
// not recoverable cases. Lines that match no recognized shape, HELP
// output included, come back as KindRaw.
func Classify(line string) (*Response, error) {
	line = TrimLine(line)

	if msg, ok := strings.CutPrefix(line, ErrPrefix); ok {
		return &Response{Kind: KindError, Raw: line, Err: &ServerError{Message: msg}}, nil
	}

	switch line {
	case RespOK:
		return &Response{Kind: KindOK, Raw: line}, nil
	case RespPong:
		return &Response{Kind: KindPong, Raw: line}, nil
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return &Response{Kind: KindRaw, Raw: line}, nil
	}

	switch fields[0] {
	case RespResult:
		// HELP answers with RESULT followed by text, not a count; only a
		// trailing integer makes this a counted result.
		if len(fields) >= 2 {
			if count, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
				return &Response{Kind: KindResult, Raw: line, Count: count}, nil
			}
		}
		return &Response{Kind: KindRaw, Raw: line}, nil

	case RespEvent:
		if len(fields) < 3 || (fields[1] != EventQuery && fields[1] != EventSuggest) {
			return &Response{Kind: KindRaw, Raw: line}, nil
		}
		return &Response{
			Kind:  KindEvent,
			Raw:   line,
			Event: fields[1],
			Token: fields[2],
			IDs:   fields[3:],
		}, nil

	case RespPending:
		token, err := ParsePendingToken(line)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: KindPending, Raw: line, Token: token}, nil

	case RespStarted:
		version, err := ParseProtocolVersion(line)
		if err != nil {
			return nil, err
		}
		buffer, err := ParseBufferSize(line)
		if err != nil {
			return nil, err
		}
		resp := &Response{Kind: KindStarted, Raw: line, Protocol: version, Buffer: buffer}
		if len(fields) > 1 {
			resp.Channel = Channel(fields[1])
		}
		return resp, nil

	case RespEnded:
		return &Response{Kind: KindEnded, Raw: line}, nil
	}

	return &Response{Kind: KindRaw, Raw: line}, nil
}

// ParseProtocolVersion extracts the integer inside protocol(...) of a
// STARTED line. A STARTED line without it is a protocol-contract violation.
func ParseProtocolVersion(line string) (int, error) {
	return parseParenField(line, "protocol")
}

// ParseBufferSize extracts the integer inside buffer(...) of a STARTED line.
func ParseBufferSize(line string) (int, error) {
	return parseParenField(line, "buffer")
}

func parseParenField(line, name string) (int, error) {
	marker := name + "("
	i := strings.Index(line, marker)
	if i < 0 {
		return 0, &ProtocolError{Message: "line doesn't contain " + name + "(NUMBER): " + TrimLine(line)}
	}
	rest := line[i+len(marker):]
	j := strings.IndexByte(rest, ')')
	if j < 0 {
		return 0, &ProtocolError{Message: "unterminated " + name + "(...) field: " + TrimLine(line)}
	}
	value, err := strconv.Atoi(rest[:j])
	if err != nil {
		return 0, &ProtocolError{Message: "non-integer " + name + "(...) field: " + TrimLine(line), Err: err}
	}
	return value, nil
}

// ParsePendingToken extracts the correlation token of a `PENDING <token>` line.
func ParsePendingToken(line string) (string, error) {
	fields := strings.Fields(TrimLine(line))
	if len(fields) < 2 || fields[0] != RespPending {
		return "", &ProtocolError{Message: "line doesn't contain an async response token: " + TrimLine(line)}
	}
	return fields[1], nil
}
