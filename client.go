package sonic

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/searchbound/sonic/protocol"
)

// Config holds configuration shared by the channel clients.
type Config struct {
	// Password is the channel credential from the server's config.cfg.
	Password string

	// ConnectTimeout bounds socket establishment.
	// Defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Timeout bounds each blocking read/write once connected.
	// Defaults to DefaultTimeout.
	Timeout time.Duration

	// KeepAlive enables TCP keepalive probes with the given period.
	// Zero leaves keepalive disabled.
	KeepAlive time.Duration

	// MaxPoolSize is the maximum number of connections per endpoint.
	// Defaults to DefaultMaxPoolSize.
	MaxPoolSize int32

	// MaxConnLifetime is the maximum duration a connection can be reused.
	// Zero means no limit. Enforced by the health check loop.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum duration a connection can sit idle
	// before being closed. Zero means no limit.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is how often idle connections are checked.
	// Zero disables the background health check.
	HealthCheckInterval time.Duration

	// Dialer overrides the net.Dialer used to create sockets.
	Dialer *net.Dialer

	// Pool is the connection pool factory. Defaults to NewPuddlePool.
	Pool PoolFactory

	// SelectEndpoint picks which endpoint handles a routing key.
	// Defaults to DefaultSelectEndpoint.
	SelectEndpoint SelectEndpointFunc

	// NewCircuitBreaker creates a circuit breaker per endpoint.
	// Nil disables circuit breaking.
	NewCircuitBreaker func(addr string) CircuitBreaker

	// Logger receives connection and pool diagnostics.
	// Defaults to a no-op logger.
	Logger *zap.Logger
}

// endpointPool pairs a pool with its endpoint address.
type endpointPool struct {
	addr           string
	pool           Pool
	circuitBreaker CircuitBreaker // nil if not configured
}

// client is the execution engine shared by the channel clients: it owns one
// pool per endpoint and runs the acquire / execute / probe-release cycle.
type client struct {
	servers        Servers
	channel        protocol.Channel
	config         Config
	selectEndpoint SelectEndpointFunc
	poolFactory    PoolFactory
	logger         *zap.Logger

	mu    sync.RWMutex
	pools map[string]*endpointPool

	stopHealthCheck chan struct{}
	closeOnce       sync.Once

	stats *clientStatsCollector
}

func newClient(servers Servers, channel protocol.Channel, config Config) (*client, error) {
	if servers == nil || len(servers.List()) == 0 {
		return nil, ErrNoServers
	}

	selectEndpoint := config.SelectEndpoint
	if selectEndpoint == nil {
		selectEndpoint = DefaultSelectEndpoint
	}
	poolFactory := config.Pool
	if poolFactory == nil {
		poolFactory = NewPuddlePool
	}
	if config.MaxPoolSize <= 0 {
		config.MaxPoolSize = DefaultMaxPoolSize
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &client{
		servers:         servers,
		channel:         channel,
		config:          config,
		selectEndpoint:  selectEndpoint,
		poolFactory:     poolFactory,
		logger:          logger,
		pools:           make(map[string]*endpointPool),
		stopHealthCheck: make(chan struct{}),
		stats:           newClientStatsCollector(),
	}

	if config.HealthCheckInterval > 0 {
		go c.healthCheckLoop()
	}

	return c, nil
}

// Close closes every pool and their connections. The client is unusable
// afterwards.
func (c *client) Close() {
	c.closeOnce.Do(func() {
		close(c.stopHealthCheck)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ep := range c.pools {
		ep.pool.Close()
	}
	c.pools = make(map[string]*endpointPool)
}

// Channel returns the channel this client is bound to.
func (c *client) Channel() protocol.Channel {
	return c.channel
}

// Stats returns a snapshot of client operation statistics.
func (c *client) Stats() ClientStats {
	return c.stats.snapshot()
}

// EndpointPoolStats contains pool stats for a single endpoint.
type EndpointPoolStats struct {
	Addr                string
	PoolStats           PoolStats
	CircuitBreakerState CircuitBreakerState
}

// AllPoolStats returns stats for every endpoint pool created so far.
func (c *client) AllPoolStats() []EndpointPoolStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]EndpointPoolStats, 0, len(c.pools))
	for _, ep := range c.pools {
		s := EndpointPoolStats{
			Addr:      ep.addr,
			PoolStats: ep.pool.Stats(),
		}
		if ep.circuitBreaker != nil {
			s.CircuitBreakerState = ep.circuitBreaker.State()
		}
		stats = append(stats, s)
	}
	return stats
}

// endpointFor returns the pool for the endpoint handling this routing key,
// creating it lazily.
func (c *client) endpointFor(key string) (*endpointPool, error) {
	addr, err := c.selectEndpoint(key, c.servers.List())
	if err != nil {
		return nil, err
	}
	return c.getOrCreatePool(addr)
}

func (c *client) getOrCreatePool(addr string) (*endpointPool, error) {
	// Fast path: read lock
	c.mu.RLock()
	ep, exists := c.pools[addr]
	c.mu.RUnlock()
	if exists {
		return ep, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the write lock
	if ep, exists := c.pools[addr]; exists {
		return ep, nil
	}

	pool, err := c.poolFactory(c.connectionConstructor(addr), c.config.MaxPoolSize)
	if err != nil {
		return nil, err
	}

	ep = &endpointPool{addr: addr, pool: pool}
	if c.config.NewCircuitBreaker != nil {
		ep.circuitBreaker = c.config.NewCircuitBreaker(addr)
	}
	c.pools[addr] = ep
	return ep, nil
}

// connectionConstructor builds the pool constructor for one endpoint: every
// pooled connection has already completed the full channel handshake.
func (c *client) connectionConstructor(addr string) func(ctx context.Context) (*Connection, error) {
	connConfig := ConnectionConfig{
		Password:       c.config.Password,
		ConnectTimeout: c.config.ConnectTimeout,
		Timeout:        c.config.Timeout,
		KeepAlive:      c.config.KeepAlive,
		Dialer:         c.config.Dialer,
		Logger:         c.logger,
	}

	return func(ctx context.Context) (*Connection, error) {
		conn := NewConnection(addr, c.channel, connConfig)
		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// execute runs one synchronous command: acquire a connection for the
// routing key, run it, then release with the liveness discipline.
func (c *client) execute(ctx context.Context, key, verb string, args ...string) (*protocol.Response, error) {
	ep, err := c.endpointFor(key)
	if err != nil {
		c.stats.recordError()
		return nil, err
	}

	if ep.circuitBreaker != nil {
		resp, err := ep.circuitBreaker.Execute(func() (*protocol.Response, error) {
			return c.executeDirect(ctx, ep.pool, verb, args)
		})
		if err != nil {
			c.stats.recordError()
			return nil, err
		}
		return resp, nil
	}

	resp, err := c.executeDirect(ctx, ep.pool, verb, args)
	if err != nil {
		c.stats.recordError()
		return nil, err
	}
	return resp, nil
}

func (c *client) executeDirect(ctx context.Context, pool Pool, verb string, args []string) (*protocol.Response, error) {
	res, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := res.Value().Execute(verb, args...)
	c.finish(res, err)
	return resp, err
}

// executeAsync runs one QUERY/SUGGEST command through the PENDING/EVENT
// exchange and returns the ordered id list.
func (c *client) executeAsync(ctx context.Context, key, verb string, args ...string) ([]string, error) {
	ep, err := c.endpointFor(key)
	if err != nil {
		c.stats.recordError()
		return nil, err
	}

	run := func() ([]string, error) {
		res, err := ep.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		ids, err := res.Value().ExecuteAsync(verb, args...)
		c.finish(res, err)
		return ids, err
	}

	var ids []string
	if ep.circuitBreaker != nil {
		_, err = ep.circuitBreaker.Execute(func() (*protocol.Response, error) {
			ids, err = run()
			return nil, err
		})
	} else {
		ids, err = run()
	}
	if err != nil {
		c.stats.recordError()
		return nil, err
	}
	return ids, nil
}

// executeRaw runs one command in raw mode and returns the unparsed
// response line. Intended for diagnostics.
func (c *client) executeRaw(ctx context.Context, key, verb string, args ...string) (string, error) {
	ep, err := c.endpointFor(key)
	if err != nil {
		c.stats.recordError()
		return "", err
	}

	res, err := ep.pool.Acquire(ctx)
	if err != nil {
		c.stats.recordError()
		return "", err
	}

	conn := res.Value()
	conn.SetRaw(true)
	resp, err := conn.Execute(verb, args...)
	conn.SetRaw(false)
	c.finish(res, err)
	if err != nil {
		c.stats.recordError()
		return "", err
	}
	return resp.Raw, nil
}

// finish implements the release discipline: errors that corrupt the
// connection destroy it outright; every other release runs a PING liveness
// probe, and a connection failing the probe is destroyed, never re-queued.
func (c *client) finish(res Resource, err error) {
	conn := res.Value()

	if err != nil && protocol.ShouldCloseConnection(err) {
		c.logger.Debug("discarding sonic connection after error",
			zap.String("addr", conn.Addr()),
			zap.Error(err))
		res.Destroy()
		return
	}

	if probeErr := conn.Ping(); probeErr != nil {
		c.logger.Debug("discarding sonic connection after failed liveness probe",
			zap.String("addr", conn.Addr()),
			zap.Error(probeErr))
		res.Destroy()
		return
	}

	res.Release()
}

// healthCheckLoop periodically checks idle connections for liveness and
// lifecycle limits.
func (c *client) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			c.checkAllPools()
		}
	}
}

func (c *client) checkAllPools() {
	c.mu.RLock()
	pools := make([]*endpointPool, 0, len(c.pools))
	for _, ep := range c.pools {
		pools = append(pools, ep)
	}
	c.mu.RUnlock()

	for _, ep := range pools {
		c.checkPoolConnections(ep.pool)
	}
}

// checkPoolConnections destroys idle connections that are stale, too old or
// fail a PING probe.
func (c *client) checkPoolConnections(pool Pool) {
	now := time.Now()

	for _, res := range pool.AcquireAllIdle() {
		if c.config.MaxConnLifetime > 0 && now.Sub(res.CreationTime()) > c.config.MaxConnLifetime {
			res.Destroy()
			continue
		}

		if c.config.MaxConnIdleTime > 0 && res.IdleDuration() > c.config.MaxConnIdleTime {
			res.Destroy()
			continue
		}

		if err := res.Value().Ping(); err != nil {
			c.logger.Debug("health check evicting sonic connection",
				zap.String("addr", res.Value().Addr()),
				zap.Error(err))
			res.Destroy()
			continue
		}

		res.ReleaseUnused()
	}
}

// Ping checks connectivity on one connection of the default endpoint.
func (c *client) Ping(ctx context.Context) error {
	resp, err := c.execute(ctx, "", protocol.CmdPing)
	if err != nil {
		return err
	}
	c.stats.recordPing()
	if resp.Kind != protocol.KindPong {
		return &protocol.ProtocolError{Message: "expected PONG, got: " + resp.Raw}
	}
	return nil
}

// Help returns the server's help text for a manual page.
// An empty manual asks for the index.
func (c *client) Help(ctx context.Context, manual string) (string, error) {
	resp, err := c.execute(ctx, "", protocol.CmdHelp, manual)
	if err != nil {
		return "", err
	}
	return resp.Raw, nil
}

// ExecuteRaw sends a command and returns the unparsed response line,
// bypassing classification. The channel catalog still applies and ERR
// responses still fail. Intended for diagnostics.
func (c *client) ExecuteRaw(ctx context.Context, verb string, args ...string) (string, error) {
	return c.executeRaw(ctx, "", verb, args...)
}
