package sonic

import (
	"github.com/zeebo/xxh3"

	"github.com/searchbound/sonic/internal"
)

// SelectEndpointFunc picks the endpoint to use for a routing key.
// It receives the key (usually the collection name, so all commands for one
// collection land on the same server) and the current list from
// Servers.List().
type SelectEndpointFunc func(key string, servers []string) (string, error)

// DefaultSelectEndpoint uses Jump Hash over an xxh3 digest of the key.
// Jump Hash keeps key movement minimal when endpoints are added or removed.
// An empty key or a single endpoint selects the first entry directly.
func DefaultSelectEndpoint(key string, servers []string) (string, error) {
	if len(servers) == 0 {
		return "", ErrNoServers
	}
	if len(servers) == 1 || key == "" {
		return servers[0], nil
	}
	return servers[internal.JumpHash(xxh3.HashString(key), len(servers))], nil
}
