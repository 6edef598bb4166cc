package grpcserver

import (
	"context"

	"github.com/whisperchain/whisperchain/internal/model"
)

type ctxKey string

const actorKey ctxKey = "wc.actor"

// WithActor stores the authenticated actor in context.
func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromCtx fetches the actor from context. Public calls have none and get the
// zero Actor, which every protected service operation rejects.
func ActorFromCtx(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey).(model.Actor)
	return a, ok
}
