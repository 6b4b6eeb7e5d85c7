package sonic

import (
	"context"
	"errors"
	"time"
)

var ErrPoolClosed = errors.New("sonic: pool closed")

// DefaultMaxPoolSize is used when Config.MaxPoolSize is zero. The protocol
// layer itself puts no upper bound on connections; the pool caps them so a
// burst of callers cannot open sockets without limit.
const DefaultMaxPoolSize = 64

// Pool is a bounded, growable collection of ready connections to one
// endpoint. Every connection handed out by Acquire has already completed
// the channel handshake.
//
// Acquire and the per-resource Release/Destroy are safe for concurrent use;
// no two callers ever hold the same connection at once.
type Pool interface {
	// Acquire returns an exclusive, ready connection, creating one if no
	// idle connection is available.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle removes and returns every idle connection, for
	// health checking. Each returned resource must be released or destroyed.
	AcquireAllIdle() []Resource

	// Close destroys all connections and makes the pool unusable.
	Close()

	// Stats returns a snapshot of pool statistics.
	Stats() PoolStats
}

// Resource is a pooled connection on loan to exactly one caller.
type Resource interface {
	// Value returns the connection.
	Value() *Connection

	// Release returns the connection to the idle set.
	Release()

	// ReleaseUnused returns the connection without counting it as used
	// (health checks call this to keep idle timestamps honest).
	ReleaseUnused()

	// Destroy closes the connection and removes it from the pool. The pool
	// does not replace it eagerly; replacement happens on a later Acquire.
	Destroy()

	// CreationTime returns when the connection was created.
	CreationTime() time.Time

	// IdleDuration returns how long the connection has been idle.
	IdleDuration() time.Duration
}

// PoolFactory builds a Pool around a connection constructor. The
// constructor runs the full connect handshake; a constructed connection is
// always ready.
type PoolFactory func(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error)
