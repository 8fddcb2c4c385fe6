package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is returned when a policy has a non-positive limit or window.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// Policy is a fixed-window quota: at most MaxRequests per Window.
// Label identifies the policy in rejections and logs.
type Policy struct {
	MaxRequests int64
	Window      time.Duration
	Label       string
}

// NewPolicy validates and returns a policy.
// Windows are tracked with millisecond precision, so windows that are shorter
// than 1ms or not a whole number of milliseconds are rejected.
func NewPolicy(label string, maxRequests int64, window time.Duration) (Policy, error) {
	if maxRequests <= 0 {
		return Policy{}, fmt.Errorf("%w: %q max requests must be positive, got %d", ErrInvalidPolicy, label, maxRequests)
	}

	if window < time.Millisecond {
		return Policy{}, fmt.Errorf("%w: %q window must be at least 1ms, got %s", ErrInvalidPolicy, label, window)
	}

	if window%time.Millisecond != 0 {
		return Policy{}, fmt.Errorf("%w: %q window must be whole milliseconds, got %s", ErrInvalidPolicy, label, window)
	}

	return Policy{
		MaxRequests: maxRequests,
		Window:      window,
		Label:       label,
	}, nil
}

// MustPolicy is like NewPolicy but panics on an invalid policy.
// Use it for package-level policy tables.
func MustPolicy(label string, maxRequests int64, window time.Duration) Policy {
	p, err := NewPolicy(label, maxRequests, window)
	if err != nil {
		panic(err)
	}

	return p
}

// Named policies for the protected endpoints.
var (
	PolicyAPI           = MustPolicy("api", 60, time.Minute)
	PolicyExport        = MustPolicy("export", 5, 5*time.Minute)
	PolicyCopilot       = MustPolicy("copilot", 20, time.Minute)
	PolicyBilling       = MustPolicy("billing", 10, time.Minute)
	PolicyWebhook       = MustPolicy("webhook", 120, time.Minute)
	PolicyWebhookDedupe = MustPolicy("webhook-dedupe", 1, 24*time.Hour)

	// PolicyEdge is a coarse per-IP flood guard applied in front of every route.
	PolicyEdge = MustPolicy("edge", 600, time.Minute)
)

// Policies indexes the named policies by label.
var Policies = map[string]Policy{
	PolicyAPI.Label:           PolicyAPI,
	PolicyExport.Label:        PolicyExport,
	PolicyCopilot.Label:       PolicyCopilot,
	PolicyBilling.Label:       PolicyBilling,
	PolicyWebhook.Label:       PolicyWebhook,
	PolicyWebhookDedupe.Label: PolicyWebhookDedupe,
	PolicyEdge.Label:          PolicyEdge,
}

// Lookup returns the named policy with the given label.
func Lookup(label string) (Policy, bool) {
	p, ok := Policies[label]

	return p, ok
}
