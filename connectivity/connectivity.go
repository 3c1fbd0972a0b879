// Package connectivity wraps calls to remote services in composable
// resilience layers: timeout, panic recovery, circuit breaking, and a local
// fallback when the remote side cannot answer.
//
// Every layer works on the same shape, a Handler taking and returning raw
// bytes, so a remote HTTP client and an in-process function are
// interchangeable:
//
//	h := connectivity.Chain(
//		connectivity.WithFallback(local, "scoring", logger),
//		connectivity.Recovery(logger),
//		connectivity.WithCircuitBreaker(cb, "scoring"),
//		connectivity.Timeout(30*time.Second, "scoring"),
//	)(remote)
//	resp, err := h(ctx, payload)
//
// JSON wraps a typed function as a Handler and Typed goes the other way.
package connectivity

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler is a transport-agnostic service function: bytes in, bytes out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// JSON adapts fn to a Handler that decodes its payload as Req and encodes the
// response as JSON.
func JSON[Req, Resp any](fn func(context.Context, Req) (Resp, error)) Handler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, fmt.Errorf("connectivity: decode request: %w", err)
			}
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}
}

// Typed is the inverse of JSON: it encodes req, calls h and decodes the
// response into Resp.
func Typed[Req, Resp any](h Handler) func(context.Context, Req) (Resp, error) {
	return func(ctx context.Context, req Req) (Resp, error) {
		var resp Resp
		payload, err := json.Marshal(req)
		if err != nil {
			return resp, fmt.Errorf("connectivity: encode request: %w", err)
		}
		out, err := h(ctx, payload)
		if err != nil {
			return resp, err
		}
		if err := json.Unmarshal(out, &resp); err != nil {
			return resp, fmt.Errorf("connectivity: decode response: %w", err)
		}
		return resp, nil
	}
}
