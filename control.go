package sonic

import (
	"context"

	"github.com/searchbound/sonic/protocol"
)

// ControlClient performs administrative actions over the control channel.
type ControlClient struct {
	*client
}

// NewControlClient creates a client bound to the control channel.
func NewControlClient(servers Servers, config Config) (*ControlClient, error) {
	c, err := newClient(servers, protocol.ChannelControl, config)
	if err != nil {
		return nil, err
	}
	return &ControlClient{client: c}, nil
}

// Trigger fires a named server action with optional data, on every known
// endpoint. The first error stops the fan-out.
func (c *ControlClient) Trigger(ctx context.Context, action string, data ...string) error {
	args := append([]string{action}, data...)

	for _, addr := range c.servers.List() {
		ep, err := c.getOrCreatePool(addr)
		if err != nil {
			c.stats.recordError()
			return err
		}
		resp, err := c.executeDirect(ctx, ep.pool, protocol.CmdTrigger, args)
		if err != nil {
			c.stats.recordError()
			return err
		}
		if !resp.OK() {
			c.stats.recordError()
			return &protocol.ProtocolError{Message: "expected OK, got: " + resp.Raw}
		}
	}
	c.stats.recordTrigger()
	return nil
}

// Consolidate forces an immediate commit of pending index writes to disk.
func (c *ControlClient) Consolidate(ctx context.Context) error {
	return c.Trigger(ctx, "consolidate")
}

// Backup asks the server to write a backup of its key-value and FST data
// under the given path.
func (c *ControlClient) Backup(ctx context.Context, path string) error {
	return c.Trigger(ctx, "backup", path)
}

// Restore asks the server to restore a previous backup from the given path.
func (c *ControlClient) Restore(ctx context.Context, path string) error {
	return c.Trigger(ctx, "restore", path)
}

// ProtocolVersions reports the negotiated protocol version of one live
// connection per endpoint, keyed by address.
func (c *ControlClient) ProtocolVersions(ctx context.Context) (map[string]int, error) {
	versions := make(map[string]int)
	for _, addr := range c.servers.List() {
		ep, err := c.getOrCreatePool(addr)
		if err != nil {
			return nil, err
		}
		res, err := ep.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		versions[addr] = res.Value().ProtocolVersion()
		c.finish(res, nil)
	}
	return versions, nil
}
