// Package middleware implements the MiddlewareChain (spec §4.10): an onion
// model wrapping every method invocation, outermost-registered runs first and
// wraps all the rest, with short-circuit support (a middleware that returns
// without calling next skips the inner chain and the underlying call).
//
// No pack library fits a generic non-HTTP interceptor chain (the examples'
// HTTP middleware stacks are all net/http-shaped, tied to
// http.Handler/ResponseWriter), so this is hand-rolled on stdlib closures —
// recorded as a stdlib-justified component in DESIGN.md. Grounded on the
// invocation-wrapping shape of original_source/orchestrator/orchestrator.py's
// _middlewares list and add_middleware/reversed-dispatch loop (onion
// composition order) adapted to a Go func chain.
package middleware

import "context"

// Invocation describes one method call being intercepted.
type Invocation struct {
	Component string
	Method    string
	Args      map[string]any
}

// Next is called by a Middleware to continue the chain; it returns the final
// result once every inner middleware (and the underlying call) has run.
type Next func(ctx context.Context, inv Invocation) (any, error)

// Middleware wraps a call. Implementations that don't call next short-circuit
// the chain without invoking anything further inward.
type Middleware func(ctx context.Context, inv Invocation, next Next) (any, error)

// Chain composes a sequence of Middleware, outermost-first.
type Chain struct {
	stack []Middleware
}

// New builds a Chain from middlewares in outermost-first registration order.
func New(middlewares ...Middleware) *Chain {
	return &Chain{stack: append([]Middleware(nil), middlewares...)}
}

// Use appends one more middleware to the innermost end of the chain.
func (c *Chain) Use(m Middleware) {
	c.stack = append(c.stack, m)
}

// Run executes the chain around terminal, the underlying Invocable call.
func (c *Chain) Run(ctx context.Context, inv Invocation, terminal Next) (any, error) {
	return c.build(0, terminal)(ctx, inv)
}

func (c *Chain) build(i int, terminal Next) Next {
	if i >= len(c.stack) {
		return terminal
	}
	mw := c.stack[i]
	inner := c.build(i+1, terminal)
	return func(ctx context.Context, inv Invocation) (any, error) {
		return mw(ctx, inv, inner)
	}
}

// Len reports how many middleware are registered.
func (c *Chain) Len() int { return len(c.stack) }
