package app

import (
	"context"
	"strings"

	"github.com/hylla/remiss/internal/domain"
)

// WithActor attaches normalized caller identity to context. The engine trusts
// these values; authentication happens upstream of this process.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, normalizeActor(actor))
}

// ActorFromContext returns normalized caller identity when present.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	raw := ctx.Value(actorContextKey{})
	actor, ok := raw.(domain.Actor)
	if !ok {
		return domain.Actor{}, false
	}
	actor = normalizeActor(actor)
	if actor.Department == domain.DepartmentNone && actor.Name == "" {
		return domain.Actor{}, false
	}
	return actor, true
}

// actorContextKey stores the context key for caller identity.
type actorContextKey struct{}

// normalizeActor trims and canonicalizes actor identity fields.
func normalizeActor(actor domain.Actor) domain.Actor {
	actor.Department = domain.NormalizeDepartment(string(actor.Department))
	actor.UserID = strings.TrimSpace(actor.UserID)
	actor.Name = strings.TrimSpace(actor.Name)
	return actor
}
