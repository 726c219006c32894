// Package narrative is the contract with the story generation service that
// turns a player's action into the next piece of the shared story.
package narrative

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/storyserver/world"
)

var ErrMalformedResponse = errors.New("malformed narrative response")

// Request carries the story so far and the action of the turn-holder.
type Request struct {
	StorySoFar string
	Action     string
}

// Generator produces the next story beat. Any error is treated by the caller
// as a failed turn.
type Generator interface {
	Generate(ctx context.Context, req Request) (world.Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (world.Result, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (world.Result, error) {
	return f(ctx, req)
}

// WithTimeout bounds every call of g by d. A zero or negative d returns g
// unchanged, so calls may wait indefinitely.
func WithTimeout(g Generator, d time.Duration) Generator {
	if d <= 0 {
		return g
	}
	return GeneratorFunc(func(ctx context.Context, req Request) (world.Result, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return g.Generate(ctx, req)
	})
}
