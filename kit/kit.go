// Package kit defines the transport-agnostic endpoint abstraction.
//
// An Endpoint is a single operation exposed over one or more transports
// (HTTP, MCP). Middleware composes cross-cutting behavior around endpoints
// without tying it to a transport.
package kit

import "context"

// Endpoint is a single transport-agnostic operation.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with additional behavior.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares left to right: the first middleware is the
// outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
