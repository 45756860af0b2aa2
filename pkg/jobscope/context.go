package jobscope

import "context"

type contextKey struct{}

// Into attaches s to ctx so a JobBlock can recover it with From.
func Into(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// From recovers the scope attached to ctx, or nil if none was
// attached. Every JobBlock invoked by the orchestrator is guaranteed
// one; nil only occurs if a package outside the orchestrator calls a
// JobBlock directly (e.g. in a unit test), which callers should treat
// as a programming error rather than silently no-op against.
func From(ctx context.Context) *Scope {
	s, _ := ctx.Value(contextKey{}).(*Scope)
	return s
}
