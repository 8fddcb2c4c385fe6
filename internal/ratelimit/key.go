package ratelimit

import (
	"strconv"
	"strings"
	"time"

	"github.com/serroba/quota-guard/internal/clientid"
)

const (
	keyPrefix = "rl:"

	// MaxIdentifierLength bounds an identifier before it becomes part of a store key.
	MaxIdentifierLength = 256
)

// NormalizeIdentifier strips control characters and caps the identifier length.
// Empty identifiers become clientid.Unknown so they still share a bounded bucket.
func NormalizeIdentifier(identifier string) string {
	identifier = clientid.Truncate(identifier, MaxIdentifierLength)
	if identifier == "" {
		return clientid.Unknown
	}

	return identifier
}

// Key builds the store key for an identifier and window length.
// Policies with different windows on the same identifier get independent keys.
func Key(identifier string, window time.Duration) string {
	return identifierPrefix(identifier) + strconv.FormatInt(window.Milliseconds(), 10)
}

func identifierPrefix(identifier string) string {
	return keyPrefix + NormalizeIdentifier(identifier) + ":"
}

// matchIdentifier returns a matcher for every key of identifier, whatever its window.
func matchIdentifier(identifier string) func(string) bool {
	prefix := identifierPrefix(identifier)

	return func(key string) bool {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || rest == "" {
			return false
		}

		for _, c := range rest {
			if c < '0' || c > '9' {
				return false
			}
		}

		return true
	}
}
