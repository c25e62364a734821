package wamp

import (
	"context"
)

// InvocationMiddleware wraps invocation handlers of every registration of a
// session. It must call next to continue the chain.
type InvocationMiddleware func(ctx context.Context, inv *Invocation, next InvocationHandler) (*Result, error)

// chainHandler composes middleware around final so that middleware[0] runs
// first.
func chainHandler(middleware []InvocationMiddleware, final InvocationHandler) InvocationHandler {
	handler := final
	for i := range middleware {
		handler = wrapHandler(middleware[len(middleware)-1-i], handler)
	}
	return handler
}

func wrapHandler(m InvocationMiddleware, next InvocationHandler) InvocationHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		return m(ctx, inv, next)
	}
}

// ApplyHandlerChain runs inv through middleware and then final.
func ApplyHandlerChain(ctx context.Context, inv *Invocation, middleware []InvocationMiddleware, final InvocationHandler) (*Result, error) {
	return chainHandler(middleware, final)(ctx, inv)
}
