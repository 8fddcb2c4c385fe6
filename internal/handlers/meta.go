package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// HeaderShopDomain carries the calling shop's domain. It is client supplied and unverified.
const HeaderShopDomain = "X-Shop-Domain"

type requestMetaKey struct{}

// RequestMeta holds request metadata resolved once per request by middleware.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
	Shop      string
}

// Caller returns the shop when one was sent, else the client IP.
func (m RequestMeta) Caller() string {
	if m.Shop != "" {
		return m.Shop
	}

	return m.ClientIP
}

// ContextWithRequestMeta adds request metadata to context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts request metadata from context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return v
	}

	return RequestMeta{}
}

// IdentifyShop keys quotas by shop. An empty result lets the resolver fall back to the IP.
//
// The shop comes from HeaderShopDomain as sent by the client and is not verified, so a
// client that rotates the header gets a fresh per-shop budget each time. Only the per-IP
// edge policy on the router bounds such a client; put the service behind something that
// authenticates shops before relying on per-shop limits for abuse protection.
func IdentifyShop(ctx huma.Context) string {
	return RequestMetaFromContext(ctx.Context()).Shop
}
