package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no member of a [Chain] produced a result.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is the template for the breaker created per chain member.
// Its IsFailure classifier also decides failover: an error it does not count
// as a failure is handed straight back to the caller.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	backend T
	breaker *CircuitBreaker
}

// Chain is an ordered list of interchangeable backends. Calls go to the
// first member whose breaker admits them and move down the list on failure.
//
// Members are added during setup; once the chain is shared, [Call] is safe
// for concurrent use.
type Chain[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewChain returns a chain whose first member is primary.
func NewChain[T any](primaryName string, primary T, cfg FallbackConfig) *Chain[T] {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = DefaultIsFailure
	}
	c := &Chain[T]{cfg: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a backend that is tried after all earlier members.
func (c *Chain[T]) Add(name string, backend T) {
	bc := c.cfg.CircuitBreaker
	bc.Name = name
	c.members = append(c.members, member[T]{name: name, backend: backend, breaker: NewCircuitBreaker(bc)})
}

// Primary returns the first member.
func (c *Chain[T]) Primary() T { return c.members[0].backend }

// Len returns the number of members.
func (c *Chain[T]) Len() int { return len(c.members) }

// States reports every member's breaker state keyed by member name.
func (c *Chain[T]) States() map[string]State {
	out := make(map[string]State, len(c.members))
	for _, m := range c.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

// Call runs fn against the chain's members in order and returns the first
// success. It stops early when ctx ends or fn returns an error the breaker
// does not count as a failure. When every member fails the result wraps
// [ErrAllFailed] together with each member's error.
func Call[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, m := range c.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var out R
		err := m.breaker.Execute(func() error {
			var err error
			out, err = fn(ctx, m.backend)
			return err
		})
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider skipped, circuit open", "provider", m.name)
		case !c.cfg.CircuitBreaker.IsFailure(err):
			return zero, err
		default:
			slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
