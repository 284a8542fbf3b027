package pipeline

import (
	"fmt"
	"time"

	"flume/internal/config"
	"flume/internal/spec"
	"flume/internal/transform"
	"flume/sink"
	sinkkafka "flume/sink/kafka"
	"flume/sink/stdout"
	"flume/source"
	"flume/source/kafka"
	"flume/source/stdin"
)

func Compile(path string) (*Runner, error) {
	cfg, confPath, err := config.LoadPipelineSpec(path)
	if err != nil {
		return nil, err
	}
	r := NewRunner()
	if err := build(cfg, confPath, r); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func build(cfg spec.File, confPath string, r *Runner) error {
	r.SetHighWaterMark(cfg.Stream.HighWaterMark)

	/*──────── source ───────*/
	var (
		src    source.Adapter
		srcCfg any
		err    error
	)
	switch cfg.Source.Kind {
	case "kafka":
		driver := cfg.Source.Driver
		if driver == "" {
			driver = "sarama"
		}
		if srcCfg, err = kafka.LoadConfig(confPath); err != nil {
			return err
		}
		src, err = source.NewAdapter("kafka/" + driver)
	case "stdin":
		srcCfg = stdin.Config{}
		src, err = source.NewAdapter("stdin")
	default:
		return fmt.Errorf("unsupported source %q", cfg.Source.Kind)
	}
	if err != nil {
		return err
	}
	if err := src.Configure(srcCfg); err != nil {
		return err
	}
	r.SetSource(src)

	if aw, ok := src.(source.AckAware); ok {
		r.SubscribeAck(aw.OnAck)
	}

	/*──────── stages ───────*/
	for _, t := range cfg.Transformers {
		fns, err := transform.Build(t)
		if err != nil {
			return err
		}
		r.AddStage(t.Name, fns, time.Duration(t.TimeoutMS)*time.Millisecond)
	}

	/*──────── sinks ───────*/
	if len(cfg.Sinks) == 0 {
		return fmt.Errorf("pipeline has no sinks")
	}
	for _, name := range cfg.Sinks {
		sDrv, err := sink.NewAdapter(name)
		if err != nil {
			return err
		}

		switch name {
		case "stdout":
			c := cfg.SinkConfigs.Stdout
			err = sDrv.Configure(stdout.Config{
				PrintCounter:  c.PrintCounter,
				BatchSize:     c.AckBatchSize,
				FlushMS:       c.AckFlushMS,
				ValueMaxBytes: c.ValueMaxBytes,
			})
		case "kafka":
			c := cfg.SinkConfigs.Kafka
			err = sDrv.Configure(sinkkafka.Config{
				Brokers: c.Brokers,
				Topic:   c.Topic,
				Acks:    c.RequiredAcks,
			})
		default:
			err = fmt.Errorf("no config block for sink %q", name)
		}
		if err != nil {
			return err
		}

		if ackAware, ok := sDrv.(sink.AckAware); ok {
			ackAware.BindAck(r.Ack)
		}
		r.AddSink(name, sDrv)
	}
	return nil
}
