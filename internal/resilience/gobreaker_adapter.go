package resilience

import (
	"context"
	"time"

	"github.com/R3E-Network/automation-core/internal/apperr"
	gobreaker "github.com/sony/gobreaker/v2"
)

// GobreakerAdapter satisfies the Breaker interface on top of
// github.com/sony/gobreaker/v2, the alternate backend named in
// SPEC_FULL.md's domain stack. It is selected by configuration
// (resilience.backend=gobreaker) in place of the hand-rolled
// CircuitBreaker when an operator wants gobreaker's generation-counter
// semantics instead.
type GobreakerAdapter struct {
	cb *gobreaker.CircuitBreaker[any]
	callTimeout time.Duration
}

// NewGobreakerAdapter builds an adapter whose trip condition mirrors
// Config.FailureThreshold and whose open-state duration mirrors
// Config.ResetTimeout.
func NewGobreakerAdapter(name string, cfg Config) *GobreakerAdapter {
	settings := gobreaker.Settings{
		Name:        name,
		Timeout:     cfg.ResetTimeout,
		MaxRequests: uint32(cfg.SuccessThreshold),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnStateChange(name, translateState(from), translateState(to))
		}
	}
	return &GobreakerAdapter{
		cb:          gobreaker.NewCircuitBreaker[any](settings),
		callTimeout: cfg.CallTimeout,
	}
}

func translateState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Execute adapts gobreaker's Execute (which returns (any, error)) to the
// Breaker contract's (error)-only signature, passing fn a context bounded
// by the call timeout. Unlike CircuitBreaker.Execute it waits for fn to
// return and does not turn an expired deadline into a KindTimeout error.
func (g *GobreakerAdapter) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := g.cb.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
		if err := fn(callCtx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperr.New(apperr.KindCircuitOpen, "circuit breaker "+g.cb.Name()+" is open")
	}
	return err
}

// State reports the gobreaker backend's current state translated to the
// shared three-state vocabulary.
func (g *GobreakerAdapter) State() State {
	return translateState(g.cb.State())
}

var _ Breaker = (*GobreakerAdapter)(nil)
