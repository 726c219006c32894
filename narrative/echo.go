package narrative

import (
	"context"
	"strings"

	"github.com/wfunc/storyserver/world"
)

// Echo is an offline narrator used when no model backend is configured. It
// narrates the action back without changing any stats.
type Echo struct{}

func (Echo) Generate(ctx context.Context, req Request) (world.Result, error) {
	if err := ctx.Err(); err != nil {
		return world.Result{}, err
	}
	action := strings.TrimSpace(req.Action)
	if action == "" {
		return world.Result{}, ErrMalformedResponse
	}
	return world.Result{Story: "You " + strings.TrimSuffix(action, ".") + ". The world holds its breath."}, nil
}
