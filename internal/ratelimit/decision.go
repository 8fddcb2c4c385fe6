package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Advisory and rejection headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// TimeFormat is ISO 8601 with millisecond precision, as used in rejection bodies.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Decision is the outcome of a quota check.
// Count is the counter value the decision was made on; it is 0 when the store failed open.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Count     int64
	ResetAt   time.Time
	Policy    Policy
}

func decide(policy Policy, count int64, resetAt time.Time, allowed bool) Decision {
	return Decision{
		Allowed:   allowed,
		Limit:     policy.MaxRequests,
		Remaining: max(0, policy.MaxRequests-count),
		Count:     count,
		ResetAt:   resetAt,
		Policy:    policy,
	}
}

// FirstRejection reports whether d is the first denied request of its window.
// Increments are atomic, so exactly one caller per window sees the count Limit+1.
func (d Decision) FirstRejection() bool {
	return !d.Allowed && d.Count == d.Limit+1
}

// Headers returns the advisory headers for d. The reset header is in epoch milliseconds.
func (d Decision) Headers() map[string]string {
	return map[string]string{
		HeaderLimit:     strconv.FormatInt(d.Limit, 10),
		HeaderRemaining: strconv.FormatInt(d.Remaining, 10),
		HeaderReset:     strconv.FormatInt(d.ResetAt.UnixMilli(), 10),
	}
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (d Decision) RetryAfter(now time.Time) int64 {
	secs := int64(math.Ceil(d.ResetAt.Sub(now).Seconds()))

	return max(1, secs)
}

// RejectionBody is the JSON body sent with a 429.
type RejectionBody struct {
	Error     string `json:"error"`
	Remaining int64  `json:"remaining"`
	ResetAt   string `json:"resetAt"`
}

// Rejection is the protocol-level form of a denied decision.
type Rejection struct {
	Status  int
	Headers map[string]string
	Body    RejectionBody
}

// Reject renders a denied decision as a 429 with Retry-After and the advisory headers.
func (d Decision) Reject(now time.Time) Rejection {
	headers := d.Headers()
	headers[HeaderRetryAfter] = strconv.FormatInt(d.RetryAfter(now), 10)

	return Rejection{
		Status:  http.StatusTooManyRequests,
		Headers: headers,
		Body: RejectionBody{
			Error:     d.Policy.Label,
			Remaining: 0,
			ResetAt:   d.ResetAt.UTC().Format(TimeFormat),
		},
	}
}
