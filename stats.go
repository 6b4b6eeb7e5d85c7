package sonic

import (
	"sync/atomic"
	"time"
)

// PoolStats contains statistics about a connection pool.
// All fields are safe for concurrent access.
type PoolStats struct {
	// Lifetime counters
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedConns      uint64 // Total connections created
	DestroyedConns    uint64 // Total connections destroyed
	AcquireErrors     uint64 // Failed acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	// Current state gauges
	TotalConns  int32 // Total connections in pool (active + idle)
	IdleConns   int32 // Idle connections available
	ActiveConns int32 // Connections currently on loan
}

// ClientStats contains statistics about channel client operations.
// All fields are safe for concurrent access.
type ClientStats struct {
	Pushes   uint64 // Total Push operations
	Pops     uint64 // Total Pop operations
	Counts   uint64 // Total Count operations
	Flushes  uint64 // Total Flush* operations
	Queries  uint64 // Total Query operations
	Suggests uint64 // Total Suggest operations
	Triggers uint64 // Total Trigger operations
	Pings    uint64 // Total Ping operations
	Errors   uint64 // Total errors across all operations
}

// poolStatsCollector provides internal methods for updating pool stats.
// Not exported - pools update their own stats.
type poolStatsCollector struct {
	stats PoolStats
}

func (c *poolStatsCollector) recordAcquire() {
	atomic.AddUint64(&c.stats.AcquireCount, 1)
}

func (c *poolStatsCollector) recordAcquireWait(duration time.Duration) {
	atomic.AddUint64(&c.stats.AcquireWaitCount, 1)
	atomic.AddUint64(&c.stats.AcquireWaitTimeNs, uint64(duration.Nanoseconds()))
}

func (c *poolStatsCollector) recordAcquireError() {
	atomic.AddUint64(&c.stats.AcquireErrors, 1)
}

func (c *poolStatsCollector) recordCreate() {
	atomic.AddUint64(&c.stats.CreatedConns, 1)
}

func (c *poolStatsCollector) recordDestroy() {
	atomic.AddUint64(&c.stats.DestroyedConns, 1)
}

func (c *poolStatsCollector) snapshot() PoolStats {
	return PoolStats{
		AcquireCount:      atomic.LoadUint64(&c.stats.AcquireCount),
		AcquireWaitCount:  atomic.LoadUint64(&c.stats.AcquireWaitCount),
		CreatedConns:      atomic.LoadUint64(&c.stats.CreatedConns),
		DestroyedConns:    atomic.LoadUint64(&c.stats.DestroyedConns),
		AcquireErrors:     atomic.LoadUint64(&c.stats.AcquireErrors),
		AcquireWaitTimeNs: atomic.LoadUint64(&c.stats.AcquireWaitTimeNs),
	}
}

// clientStatsCollector provides internal methods for updating client stats.
type clientStatsCollector struct {
	stats ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{}
}

func (c *clientStatsCollector) recordPush()    { atomic.AddUint64(&c.stats.Pushes, 1) }
func (c *clientStatsCollector) recordPop()     { atomic.AddUint64(&c.stats.Pops, 1) }
func (c *clientStatsCollector) recordCount()   { atomic.AddUint64(&c.stats.Counts, 1) }
func (c *clientStatsCollector) recordFlush()   { atomic.AddUint64(&c.stats.Flushes, 1) }
func (c *clientStatsCollector) recordQuery()   { atomic.AddUint64(&c.stats.Queries, 1) }
func (c *clientStatsCollector) recordSuggest() { atomic.AddUint64(&c.stats.Suggests, 1) }
func (c *clientStatsCollector) recordTrigger() { atomic.AddUint64(&c.stats.Triggers, 1) }
func (c *clientStatsCollector) recordPing()    { atomic.AddUint64(&c.stats.Pings, 1) }
func (c *clientStatsCollector) recordError()   { atomic.AddUint64(&c.stats.Errors, 1) }

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Pushes:   atomic.LoadUint64(&c.stats.Pushes),
		Pops:     atomic.LoadUint64(&c.stats.Pops),
		Counts:   atomic.LoadUint64(&c.stats.Counts),
		Flushes:  atomic.LoadUint64(&c.stats.Flushes),
		Queries:  atomic.LoadUint64(&c.stats.Queries),
		Suggests: atomic.LoadUint64(&c.stats.Suggests),
		Triggers: atomic.LoadUint64(&c.stats.Triggers),
		Pings:    atomic.LoadUint64(&c.stats.Pings),
		Errors:   atomic.LoadUint64(&c.stats.Errors),
	}
}
