package engine

import (
	"context"
	"fmt"

	"flume/internal/config"
	"flume/internal/pipeline"
	"flume/internal/telemetry"
	"flume/internal/transport"
)

func Bootstrap(ctx context.Context, cfg config.Engine) (*Engine, error) {
	runner, err := pipeline.Compile(cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	e, err := start(ctx, runner, cfg.GRPCPort, cfg.MetricsPort)
	if err != nil {
		_ = runner.Close()
		return nil, err
	}
	return e, nil
}

// start brings up the control port, runs the pipeline and exposes metrics.
func start(ctx context.Context, runner *pipeline.Runner, grpcPort, metricsPort int) (*Engine, error) {
	srv, err := transport.StartServer(grpcPort)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	// health follows the runner
	runner.OnStateChange(srv.SetPipelineServing)

	if err := runner.Start(ctx); err != nil {
		srv.Stop()
		return nil, err
	}

	return &Engine{
		transport: srv,
		runner:    runner,
		metrics:   telemetry.Expose(metricsPort),
	}, nil
}
