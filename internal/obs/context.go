package obs

import (
	"context"

	"github.com/go-chi/chi/v5"
)

type routePatternKey struct{}

// routeSlot is shared by every middleware layer of one request, so a pattern resolved after
// routing is visible to the layers that started before it.
type routeSlot struct{ pattern string }

// WithRoutePattern pins the route pattern reported for the request.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if slot, ok := ctx.Value(routePatternKey{}).(*routeSlot); ok {
		slot.pattern = pattern
		return ctx
	}
	return context.WithValue(ctx, routePatternKey{}, &routeSlot{pattern: pattern})
}

// RoutePatternFromContext returns the pinned pattern, or the chi pattern matched so far. Called
// after the handler ran it yields the full pattern, e.g. /api/v1/admin/orders/{id}/status.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if slot, ok := ctx.Value(routePatternKey{}).(*routeSlot); ok && slot.pattern != "" {
		return slot.pattern
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
