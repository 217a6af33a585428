package engine

import (
	"context"

	"playrelay/internal/logging"
	"playrelay/internal/transport"
)

// Engine carries the process-wide surfaces shared by both relay loops.
type Engine struct {
	transport *transport.Server
}

// Run reports SERVING while loop runs and tears the health service down on
// every exit path.
func (e *Engine) Run(ctx context.Context, loop func(context.Context) error) error {
	if e.transport != nil {
		go func() {
			if err := e.transport.Serve(); err != nil {
				logging.L().Error("health service stopped", "err", err)
			}
		}()
		e.transport.SetServing(true)
		defer e.transport.Stop()
		defer e.transport.SetServing(false)
	}
	return loop(ctx)
}
