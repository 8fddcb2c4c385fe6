package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Limiter enforces fixed-window policies on top of a Store.
// It never fails a request because the store failed: store errors fail open.
type Limiter struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	checks   atomic.Int64
	allowed  atomic.Int64
	rejected atomic.Int64
	failOpen atomic.Int64

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source used for fail-open decisions and empty peeks.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a limiter over store.
func NewLimiter(store Store, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Check consumes one request from identifier's quota under policy.
func (l *Limiter) Check(ctx context.Context, identifier string, policy Policy) Decision {
	l.checks.Add(1)

	entry, err := l.store.Increment(ctx, Key(identifier, policy.Window), policy.Window)
	if err != nil {
		l.allowed.Add(1)

		return l.failOpenDecision(identifier, policy, "check", err)
	}

	d := decide(policy, entry.Count, entry.ResetAt, entry.Count <= policy.MaxRequests)
	if d.Allowed {
		l.allowed.Add(1)
	} else {
		l.rejected.Add(1)
	}

	return d
}

// Enforce checks every rule in order and stops at the first rejection, which it returns.
// When all rules pass it returns the decision with the fewest remaining requests.
// ok is false when rules is empty.
func (l *Limiter) Enforce(ctx context.Context, rules []Rule) (Decision, bool) {
	var (
		tightest Decision
		found    bool
	)

	for _, rule := range rules {
		d := l.Check(ctx, rule.Identifier, rule.Policy)
		if !d.Allowed {
			return d, true
		}

		if !found || d.Remaining < tightest.Remaining {
			tightest = d
			found = true
		}
	}

	return tightest, found
}

// Now returns the limiter's current time.
func (l *Limiter) Now() time.Time {
	return l.now()
}

// Peek reports identifier's quota under policy without consuming it.
// Allowed tells whether one more request would currently pass.
func (l *Limiter) Peek(ctx context.Context, identifier string, policy Policy) Decision {
	entry, ok, err := l.store.Get(ctx, Key(identifier, policy.Window))
	if err != nil {
		return l.failOpenDecision(identifier, policy, "peek", err)
	}

	if !ok {
		return decide(policy, 0, l.now().Add(policy.Window), true)
	}

	return decide(policy, entry.Count, entry.ResetAt, entry.Count < policy.MaxRequests)
}

// Reset clears identifier's counters. With a positive window only that window's key is removed.
// A zero window removes every window for identifier when the store can enumerate keys;
// otherwise it logs a warning and does nothing.
func (l *Limiter) Reset(ctx context.Context, identifier string, window time.Duration) error {
	if window > 0 {
		return l.store.Delete(ctx, Key(identifier, window))
	}

	deleter, ok := l.store.(KeyDeleter)
	if !ok {
		l.logger.Warn("reset without window is not supported by this backend",
			zap.String("backend", l.Backend()),
			zap.String("identifier", NormalizeIdentifier(identifier)),
		)

		return nil
	}

	removed, err := deleter.DeleteFunc(ctx, matchIdentifier(identifier))
	if err != nil {
		return err
	}

	l.logger.Debug("reset identifier",
		zap.String("identifier", NormalizeIdentifier(identifier)),
		zap.Int("removed", removed),
	)

	return nil
}

func (l *Limiter) failOpenDecision(identifier string, policy Policy, op string, err error) Decision {
	l.failOpen.Add(1)

	l.logger.Warn("rate limit store failed, allowing request",
		zap.String("op", op),
		zap.String("identifier", NormalizeIdentifier(identifier)),
		zap.String("policy", policy.Label),
		zap.Error(err),
	)

	return decide(policy, 0, l.now().Add(policy.Window), true)
}

// Stats is a snapshot of limiter activity.
type Stats struct {
	Backend  string `json:"backend"`
	Entries  int64  `json:"entries"`
	Checks   int64  `json:"checks"`
	Allowed  int64  `json:"allowed"`
	Rejected int64  `json:"rejected"`
	FailOpen int64  `json:"failOpen"`
}

// Stats returns counters since start. Entries is -1 when the store cannot report its size.
func (l *Limiter) Stats(ctx context.Context) Stats {
	size, err := l.StoreSize(ctx)
	if err != nil {
		size = -1
	}

	return Stats{
		Backend:  l.Backend(),
		Entries:  size,
		Checks:   l.checks.Load(),
		Allowed:  l.allowed.Load(),
		Rejected: l.rejected.Load(),
		FailOpen: l.failOpen.Load(),
	}
}

// StoreSize returns the number of entries held by the store.
func (l *Limiter) StoreSize(ctx context.Context) (int64, error) {
	return l.store.Size(ctx)
}

// Backend names the active store backend.
func (l *Limiter) Backend() string {
	if b, ok := l.store.(Backend); ok {
		return b.Backend()
	}

	return "custom"
}

// Shutdown stops the store's background work. Calls after the first are no-ops.
func (l *Limiter) Shutdown() error {
	l.shutdownOnce.Do(func() {
		if s, ok := l.store.(Shutdowner); ok {
			l.shutdownErr = s.Shutdown()
		}

		l.logger.Info("rate limiter stopped", zap.String("backend", l.Backend()))
	})

	return l.shutdownErr
}
