// Package kit holds the transport-neutral plumbing shared by the HTTP, MCP
// and CLI surfaces: endpoints and request-scoped context values.
package kit

import "context"

// Endpoint is a transport-agnostic operation. HTTP handlers, MCP tools and
// CLI commands decode their input into req and call it.
type Endpoint func(ctx context.Context, req any) (any, error)
