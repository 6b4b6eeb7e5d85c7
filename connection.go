package sonic

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/searchbound/sonic/protocol"
)

var (
	ErrConnectionClosed = errors.New("sonic: connection closed")
	ErrNotConnected     = errors.New("sonic: connection not established")
	ErrAlreadyConnected = errors.New("sonic: connection already established")
)

// Default timeouts applied when the corresponding config field is zero.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultTimeout        = 10 * time.Second
)

type connState int

const (
	stateFresh connState = iota
	stateHandshaking
	stateReady
	stateClosed
)

// ConnectionConfig carries the per-connection settings shared by every
// connection a pool creates.
type ConnectionConfig struct {
	// Password is the channel credential sent with the START handshake.
	Password string

	// ConnectTimeout bounds socket establishment. Defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Timeout bounds each blocking read/write once connected.
	// Defaults to DefaultTimeout.
	Timeout time.Duration

	// KeepAlive enables TCP keepalive probes with the given period.
	// Zero leaves keepalive disabled.
	KeepAlive time.Duration

	// Dialer overrides the net.Dialer used to create the socket.
	Dialer *net.Dialer

	// Logger receives handshake diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Connection is a single authenticated session on one sonic channel.
//
// Exactly one command may be in flight at a time: request and response
// strictly alternate on the wire. The pool guarantees exclusive use while
// a connection is on loan, and the internal mutex serializes any direct use.
type Connection struct {
	addr    string
	channel protocol.Channel
	config  ConnectionConfig
	logger  *zap.Logger

	mu     sync.Mutex
	state  connState
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	raw    bool

	// Negotiated during the handshake, zero until then.
	protocolVersion int
	bufferSize      int

	// events stashes EVENT lines whose token did not match the request
	// waiting for them, keyed by token.
	events map[string]*protocol.Response
}

// NewConnection creates an unconnected connection bound to one channel.
// Call Connect before issuing commands.
func NewConnection(addr string, channel protocol.Channel, config ConnectionConfig) *Connection {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	return &Connection{
		addr:    addr,
		channel: channel,
		config:  config,
		logger:  logger,
		events:  make(map[string]*protocol.Response),
	}
}

// Connect opens the socket and runs the channel handshake: greeting,
// START, then one PING round-trip as a liveness confirmation. Any failure
// closes the connection and propagates the originating error; a connection
// is never left mid-handshake.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateClosed:
		return ErrConnectionClosed
	case stateReady, stateHandshaking:
		return ErrAlreadyConnected
	}

	c.state = stateHandshaking
	if err := c.handshake(ctx); err != nil {
		c.closeLocked()
		return err
	}

	c.state = stateReady
	return nil
}

func (c *Connection) handshake(ctx context.Context) error {
	dialer := &net.Dialer{}
	if c.config.Dialer != nil {
		d := *c.config.Dialer
		dialer = &d
	}
	dialer.Timeout = c.config.ConnectTimeout

	// The dialer resolves all IPv4/IPv6 candidates and tries each in order.
	netConn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return &protocol.ConnectionError{Op: "dial", Err: err}
	}

	if tcpConn, ok := netConn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		if c.config.KeepAlive > 0 {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(c.config.KeepAlive)
		}
	}

	c.conn = netConn
	c.reader = bufio.NewReader(netConn)
	c.writer = bufio.NewWriter(netConn)

	// Some deployments omit the banner; a missing marker is worth a warning
	// but the handshake decides whether the endpoint really speaks sonic.
	greeting, err := c.readLine()
	if err != nil {
		return err
	}
	if !strings.Contains(greeting, protocol.GreetingMarker) {
		c.logger.Warn("sonic greeting marker missing",
			zap.String("addr", c.addr),
			zap.String("line", protocol.TrimLine(greeting)))
	}

	resp, err := c.roundTrip(protocol.CmdStart, string(c.channel), c.config.Password)
	if err != nil {
		return err
	}
	if resp.Kind != protocol.KindStarted {
		return &protocol.ProtocolError{Message: "expected STARTED, got: " + resp.Raw}
	}
	c.protocolVersion = resp.Protocol
	c.bufferSize = resp.Buffer

	pong, err := c.roundTrip(protocol.CmdPing)
	if err != nil {
		return err
	}
	if pong.Kind != protocol.KindPong {
		return &protocol.ProtocolError{Message: "expected PONG, got: " + pong.Raw}
	}

	return nil
}

// Execute sends one command and reads its single-line response.
//
// A verb outside the connection's channel catalog fails with a ChannelError
// before any bytes are written. An ERR line surfaces as a ServerError. In raw
// mode the response carries only the unparsed line (ERR lines still fail).
func (c *Connection) Execute(verb string, args ...string) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUsable(verb); err != nil {
		return nil, err
	}

	if c.raw {
		return c.rawRoundTrip(verb, args...)
	}
	return c.roundTrip(verb, args...)
}

// ExecuteAsync sends a command whose result arrives on a later EVENT line
// (QUERY, SUGGEST). The immediate PENDING acknowledgment carries a token and
// the returned EVENT is correlated against it: events with other tokens are
// stashed per connection instead of being misattributed, so an interleaved
// event can never be returned as this command's result.
func (c *Connection) ExecuteAsync(verb string, args ...string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUsable(verb); err != nil {
		return nil, err
	}

	resp, err := c.roundTrip(verb, args...)
	if err != nil {
		return nil, err
	}
	if resp.Kind != protocol.KindPending {
		return nil, &protocol.ProtocolError{Message: "expected PENDING, got: " + resp.Raw}
	}

	return c.awaitEvent(resp.Token)
}

func (c *Connection) awaitEvent(token string) ([]string, error) {
	if stashed, ok := c.events[token]; ok {
		delete(c.events, token)
		return stashed.IDs, nil
	}

	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		resp, err := protocol.Classify(line)
		if err != nil {
			return nil, err
		}
		if resp.Err != nil {
			return nil, resp.Err
		}
		if resp.Kind != protocol.KindEvent {
			return nil, &protocol.ProtocolError{Message: "expected EVENT, got: " + resp.Raw}
		}
		if resp.Token == token {
			return resp.IDs, nil
		}

		// Belongs to a different request; keep it for its owner.
		c.events[resp.Token] = resp
	}
}

// Ping runs one PING round-trip. It doubles as the pool's liveness probe.
func (c *Connection) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUsable(protocol.CmdPing); err != nil {
		return err
	}

	resp, err := c.roundTrip(protocol.CmdPing)
	if err != nil {
		return err
	}
	if resp.Kind != protocol.KindPong {
		return &protocol.ProtocolError{Message: "expected PONG, got: " + resp.Raw}
	}
	return nil
}

// Quit sends QUIT and closes the connection. The connection is dead
// afterwards regardless of what the server answered.
func (c *Connection) Quit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateReady {
		return c.closeLocked()
	}

	_, err := c.roundTrip(protocol.CmdQuit)
	closeErr := c.closeLocked()
	if err != nil {
		return err
	}
	return closeErr
}

// Close tears down the socket. It is safe to call multiple times and safe
// to call on a connection that never finished connecting. A closed
// connection must not be reused; pools discard it rather than resurrect it.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Connection) closeLocked() error {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.reader = nil
	c.writer = nil
	return err
}

// SetRaw toggles raw mode: Execute returns the unparsed response line
// instead of a classified value. Intended for diagnostics.
func (c *Connection) SetRaw(raw bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = raw
}

// Addr returns the endpoint this connection targets.
func (c *Connection) Addr() string {
	return c.addr
}

// Channel returns the channel this connection is bound to.
func (c *Connection) Channel() protocol.Channel {
	return c.channel
}

// ProtocolVersion returns the protocol version negotiated during the
// handshake, zero before Connect.
func (c *Connection) ProtocolVersion() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolVersion
}

// BufferSize returns the buffer size negotiated during the handshake,
// zero before Connect.
func (c *Connection) BufferSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bufferSize
}

// IsClosed reports whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

func (c *Connection) checkUsable(verb string) error {
	switch c.state {
	case stateClosed:
		return ErrConnectionClosed
	case stateFresh, stateHandshaking:
		return ErrNotConnected
	}
	if !protocol.CommandAllowed(c.channel, verb) {
		return &protocol.ChannelError{Verb: verb, Channel: c.channel}
	}
	return nil
}

// roundTrip writes one command line and reads one classified response line.
// Callers hold c.mu. No poison flag is kept on I/O errors; a broken socket
// fails the pool's liveness probe on release.
func (c *Connection) roundTrip(verb string, args ...string) (*protocol.Response, error) {
	if err := c.writeCommand(verb, args...); err != nil {
		return nil, err
	}
	line, err := c.readLine()
	if err != nil {
		return nil, err
	}
	resp, err := protocol.Classify(line)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp, nil
}

// rawRoundTrip bypasses classification. ERR lines are still surfaced as
// errors: a server error must never come back as data.
func (c *Connection) rawRoundTrip(verb string, args ...string) (*protocol.Response, error) {
	if err := c.writeCommand(verb, args...); err != nil {
		return nil, err
	}
	line, err := c.readLine()
	if err != nil {
		return nil, err
	}
	line = protocol.TrimLine(line)
	if protocol.IsError(line) {
		return nil, &protocol.ServerError{Message: strings.TrimPrefix(line, protocol.ErrPrefix)}
	}
	return &protocol.Response{Kind: protocol.KindRaw, Raw: line}, nil
}

func (c *Connection) writeCommand(verb string, args ...string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.Timeout)); err != nil {
		return &protocol.ConnectionError{Op: "write", Err: err}
	}
	if _, err := c.writer.WriteString(protocol.EncodeCommand(verb, args...)); err != nil {
		return &protocol.ConnectionError{Op: "write", Err: err}
	}
	if err := c.writer.Flush(); err != nil {
		return &protocol.ConnectionError{Op: "write", Err: err}
	}
	return nil
}

func (c *Connection) readLine() (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.config.Timeout)); err != nil {
		return "", &protocol.ConnectionError{Op: "read", Err: err}
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", &protocol.ConnectionError{Op: "read", Err: err}
	}
	return line, nil
}
