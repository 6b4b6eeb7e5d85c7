package protocol

import (
	"errors"
	"fmt"
)

// Error types for sonic protocol operations. Each type reports whether the
// connection that produced it is still trustworthy, which drives the
// release-vs-destroy decision in the pool.

// ServerError represents an `ERR ...` line from the server. The message is
// carried verbatim. The connection protocol state is still valid: the
// request/response alternation completed, only the operation failed.
//
// Connection handling: connection can be REUSED.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "sonic: server error: " + e.Message
}

// ShouldCloseConnection returns false - server errors don't corrupt protocol state
func (e *ServerError) ShouldCloseConnection() bool {
	return false
}

// ChannelError is returned when a command verb is not permitted on the
// connection's channel. It is raised locally before any bytes are written,
// so the connection is untouched.
//
// Connection handling: connection can be REUSED, nothing was sent.
type ChannelError struct {
	Verb    string
	Channel Channel
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("sonic: command %s is not allowed on channel %s", e.Verb, e.Channel)
}

// ShouldCloseConnection returns false - the command was never sent
func (e *ChannelError) ShouldCloseConnection() bool {
	return false
}

// ProtocolError represents a malformed line from the server: a STARTED line
// missing protocol(N)/buffer(N), a PENDING line without a token, or an
// unexpected line where a specific kind was required. After one of these the
// read stream position is uncertain.
//
// Connection handling: CLOSE connection.
type ProtocolError struct {
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "sonic: protocol error: " + e.Message + ": " + e.Err.Error()
	}
	return "sonic: protocol error: " + e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - the stream position is uncertain
func (e *ProtocolError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps underlying I/O errors from socket operations.
//
// Connection handling: connection is already broken, CLOSE it.
type ConnectionError struct {
	Op  string // operation that failed: dial, read, write
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("sonic: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - the socket is broken
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by all protocol error types to
// indicate whether the originating connection should be closed.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err requires closing the connection
// it occurred on.
//
// Returns false for ServerError, ChannelError and nil.
// Returns true for ProtocolError, ConnectionError and unknown error types.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	// Unknown error type - be conservative and close the connection
	return true
}
