package protocol

// Channel identifies the mode a connection operates in.
// A connection is bound to exactly one channel for its whole lifetime;
// the channel determines which command verbs the server accepts.
type Channel string

const (
	// ChannelUninitialized is the transient state before the START handshake.
	ChannelUninitialized Channel = "uninitialized"

	ChannelIngest  Channel = "ingest"
	ChannelSearch  Channel = "search"
	ChannelControl Channel = "control"
)

// Command verbs.
const (
	CmdStart   = "START"
	CmdPing    = "PING"
	CmdHelp    = "HELP"
	CmdQuit    = "QUIT"
	CmdPush    = "PUSH"
	CmdPop     = "POP"
	CmdCount   = "COUNT"
	CmdFlushC  = "FLUSHC"
	CmdFlushB  = "FLUSHB"
	CmdFlushO  = "FLUSHO"
	CmdQuery   = "QUERY"
	CmdSuggest = "SUGGEST"
	CmdTrigger = "TRIGGER"
)

// Response line markers.
const (
	RespOK      = "OK"
	RespPong    = "PONG"
	RespResult  = "RESULT"
	RespPending = "PENDING"
	RespEvent   = "EVENT"
	RespStarted = "STARTED"
	RespEnded   = "ENDED"

	// ErrPrefix starts every error line sent by the server.
	ErrPrefix = "ERR "

	// GreetingMarker appears in the banner line the server sends right
	// after the TCP connection is established. Some deployments omit it.
	GreetingMarker = "CONNECTED"
)

// Event kinds carried on the second line of asynchronous commands.
const (
	EventQuery   = "QUERY"
	EventSuggest = "SUGGEST"
)

// commonCmds are accepted on every channel, including before the handshake.
var commonCmds = []string{CmdStart, CmdPing, CmdHelp, CmdQuit}

var commandCatalog = map[Channel][]string{
	ChannelUninitialized: commonCmds,
	ChannelIngest:        append([]string{CmdPush, CmdPop, CmdCount, CmdFlushC, CmdFlushB, CmdFlushO}, commonCmds...),
	ChannelSearch:        append([]string{CmdQuery, CmdSuggest}, commonCmds...),
	ChannelControl:       append([]string{CmdTrigger}, commonCmds...),
}

// CommandAllowed reports whether verb may be issued on the given channel.
// An unknown channel allows nothing.
func CommandAllowed(channel Channel, verb string) bool {
	for _, v := range commandCatalog[channel] {
		if v == verb {
			return true
		}
	}
	return false
}

// Commands returns the verbs accepted on the given channel.
func Commands(channel Channel) []string {
	cmds := commandCatalog[channel]
	out := make([]string, len(cmds))
	copy(out, cmds)
	return out
}

// ValidChannel reports whether ch is one of the three connectable channels.
func ValidChannel(ch Channel) bool {
	switch ch {
	case ChannelIngest, ChannelSearch, ChannelControl:
		return true
	default:
		return false
	}
}
