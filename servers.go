package sonic

import "errors"

var ErrNoServers = errors.New("sonic: no servers available")

// Servers provides the list of sonic endpoints (host:port) a client may
// talk to. Implementations can be static or backed by service discovery;
// List is called on every operation so the list may change over time.
type Servers interface {
	List() []string
}

// staticServers is a fixed endpoint list.
type staticServers struct {
	addrs []string
}

// NewStaticServers returns a Servers with a fixed endpoint list.
// For a single server: NewStaticServers("localhost:1491").
func NewStaticServers(addrs ...string) Servers {
	return &staticServers{addrs: addrs}
}

func (s *staticServers) List() []string {
	return s.addrs
}
