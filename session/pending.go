package session

import (
	"context"

	"github.com/aperturerobotics/go-jsdos/bundle"
)

// pending is an engine start that may not have settled yet.
type pending struct {
	done chan struct{}
	ci   Instance
	err  error
}

// startPending runs f.Start on its own goroutine and returns immediately.
func startPending(ctx context.Context, f EngineFactory, b *bundle.Bundle) *pending {
	p := &pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.ci, p.err = f.Start(ctx, b)
	}()
	return p
}

// wait blocks until the start settles or ctx ends.
// It returns ctx.Err() only if the start has not settled.
func (p *pending) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pending) settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// result returns the outcome of a settled start.
func (p *pending) result() (Instance, error) {
	<-p.done
	return p.ci, p.err
}
