package ratelimit

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/quota-guard/internal/clientid"
)

// MetadataKey is the key used to store rate limit config in operation metadata.
const MetadataKey = "rateLimit"

// IdentifyFunc derives the caller identifier for a request, e.g. a shop domain.
type IdentifyFunc func(ctx huma.Context) string

// EndpointConfig defines per-endpoint quota configuration.
// It is attached to Huma operations via the Metadata field.
type EndpointConfig struct {
	// Policies are all enforced; the request is rejected by the first one exhausted.
	Policies []Policy

	// Identify derives the identifier. When nil the client IP is used.
	Identify IdentifyFunc

	// Disabled skips quota enforcement entirely for this endpoint.
	Disabled bool
}

// Rule pairs a policy with the identifier it is counted against.
type Rule struct {
	Identifier string
	Policy     Policy
}

// RuleResolver determines which rules apply to a given request.
type RuleResolver interface {
	Resolve(ctx huma.Context) []Rule
}

// MethodRuleResolver applies a default policy to mutating methods, keyed by client IP.
// GET, HEAD and OPTIONS are not limited.
type MethodRuleResolver struct {
	ips    *clientid.Resolver
	policy Policy
}

// NewMethodRuleResolver creates a method-based resolver enforcing policy on writes.
func NewMethodRuleResolver(ips *clientid.Resolver, policy Policy) *MethodRuleResolver {
	return &MethodRuleResolver{ips: ips, policy: policy}
}

// Resolve returns the default rule for mutating requests and nothing for reads.
func (r *MethodRuleResolver) Resolve(ctx huma.Context) []Rule {
	switch ctx.Method() {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	}

	return []Rule{{
		Identifier: clientid.Compound(r.policy.Label, r.ClientIP(ctx)),
		Policy:     r.policy,
	}}
}

// ClientIP resolves the caller address from proxy headers and the connection.
func (r *MethodRuleResolver) ClientIP(ctx huma.Context) string {
	return r.ips.ClientIP(ctx.Header, ctx.RemoteAddr())
}

// OperationRuleResolver resolves rules from operation metadata first,
// then falls back to method-based detection.
type OperationRuleResolver struct {
	fallback *MethodRuleResolver
}

// NewOperationRuleResolver creates an operation-aware resolver.
func NewOperationRuleResolver(fallback *MethodRuleResolver) *OperationRuleResolver {
	return &OperationRuleResolver{fallback: fallback}
}

// Resolve returns the rules for a request. Disabled endpoints resolve to none.
func (r *OperationRuleResolver) Resolve(ctx huma.Context) []Rule {
	cfg := GetEndpointConfig(ctx)
	if cfg == nil || (len(cfg.Policies) == 0 && !cfg.Disabled) {
		return r.fallback.Resolve(ctx)
	}

	if cfg.Disabled {
		return nil
	}

	who := ""
	if cfg.Identify != nil {
		who = cfg.Identify(ctx)
	}

	if who == "" {
		who = r.fallback.ClientIP(ctx)
	}

	rules := make([]Rule, 0, len(cfg.Policies))
	for _, p := range cfg.Policies {
		// The label keeps same-window policies on one caller from sharing a counter.
		rules = append(rules, Rule{Identifier: clientid.Compound(p.Label, who), Policy: p})
	}

	return rules
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}
