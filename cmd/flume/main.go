package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"flume/internal/config"
	"flume/internal/engine"
	"flume/internal/logging"
)

func main() {
	confPath := flag.String("config", "", "engine config file (yaml, optional)")
	pipelinePath := flag.String("pipeline", "", "pipeline file; overrides the engine config")
	grpcPort := flag.Int("grpc-port", 0, "control port; overrides the engine config")
	metricsPort := flag.Int("metrics-port", 0, "metrics port, -1 disables; overrides the engine config")
	flag.Parse()

	cfg, err := config.LoadEngine(*confPath)
	if err != nil {
		logging.L().Error("config", "err", err)
		os.Exit(1)
	}
	if *pipelinePath != "" {
		cfg.Pipeline = *pipelinePath
	}
	if *grpcPort != 0 {
		cfg.GRPCPort = *grpcPort
	}
	if *metricsPort != 0 {
		cfg.MetricsPort = *metricsPort
	}
	logging.Configure(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.Bootstrap(ctx, cfg)
	if err != nil {
		logging.L().Error("bootstrap", "err", err)
		os.Exit(1)
	}
	if err := e.Run(ctx); err != nil {
		logging.L().Error("engine", "err", err)
		os.Exit(1)
	}
}
