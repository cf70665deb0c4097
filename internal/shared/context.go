package shared

import "context"

type contextKey string

const actorContextKey contextKey = "atlas.actor"

// Actor identifies the authenticated operator behind a request.
type Actor struct {
	ID       int64
	Username string
	Session  string
}

// ContextWithActor stores the actor in the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext retrieves the actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(Actor)
	return actor, ok
}
