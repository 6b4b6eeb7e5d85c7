package sonic

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/searchbound/sonic/protocol"
)

// CircuitBreaker protects one endpoint from being hammered while it is
// failing. When configured, every command execution against the endpoint
// runs through it.
type CircuitBreaker interface {
	Execute(fn func() (*protocol.Response, error)) (*protocol.Response, error)
	State() CircuitBreakerState
}

// CircuitBreakerState mirrors the standard closed/half-open/open states.
type CircuitBreakerState int

const (
	CircuitClosed CircuitBreakerState = iota
	CircuitHalfOpen
	CircuitOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitHalfOpen:
		return "half-open"
	case CircuitOpen:
		return "open"
	default:
		return "closed"
	}
}

// gobreakerAdapter wraps sony/gobreaker to implement CircuitBreaker.
type gobreakerAdapter struct {
	cb *gobreaker.CircuitBreaker[*protocol.Response]
}

func (a *gobreakerAdapter) Execute(fn func() (*protocol.Response, error)) (*protocol.Response, error) {
	return a.cb.Execute(fn)
}

func (a *gobreakerAdapter) State() CircuitBreakerState {
	switch a.cb.State() {
	case gobreaker.StateHalfOpen:
		return CircuitHalfOpen
	case gobreaker.StateOpen:
		return CircuitOpen
	default:
		return CircuitClosed
	}
}

// NewCircuitBreaker wraps a gobreaker configuration as a CircuitBreaker.
func NewCircuitBreaker(settings gobreaker.Settings) CircuitBreaker {
	return &gobreakerAdapter{cb: gobreaker.NewCircuitBreaker[*protocol.Response](settings)}
}

// NewCircuitBreakerConfig returns a factory creating one circuit breaker per
// endpoint, for Config.NewCircuitBreaker. The breaker trips when at least 3
// requests were seen and 60% of them failed.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(addr string) CircuitBreaker {
	return func(addr string) CircuitBreaker {
		settings := gobreaker.Settings{
			Name:        addr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			// Server and channel errors are healthy round-trips; only
			// connection-level failures should trip the breaker.
			IsSuccessful: func(err error) bool {
				return !protocol.ShouldCloseConnection(err)
			},
		}
		return NewCircuitBreaker(settings)
	}
}
