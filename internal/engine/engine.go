package engine

import (
	"context"
	"errors"
	"net/http"
	"time"

	"flume/internal/logging"
	"flume/internal/pipeline"
	"flume/internal/transport"
)

// drainTimeout bounds how long Run waits for in-flight frames after ctx ends.
const drainTimeout = 30 * time.Second

type Engine struct {
	transport *transport.Server
	runner    *pipeline.Runner
	metrics   *http.Server
}

// Run serves the control port until ctx is cancelled or the pipeline stops
// on its own (finite source or failure), then shuts everything down.
func (e *Engine) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- e.transport.Serve() }()

	var err error
	select {
	case <-ctx.Done():
	case <-e.runner.Done():
	case err = <-serveErr:
	}

	wctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	runErr := e.runner.Wait(wctx)
	if runErr != nil {
		logging.L().Error("pipeline failed", "err", runErr)
	}

	e.transport.Stop()
	if e.metrics != nil {
		_ = e.metrics.Shutdown(wctx)
	}
	return errors.Join(err, runErr, e.runner.Close())
}
