package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"flume/frame"
	"flume/internal/logging"
	"flume/internal/telemetry"
	"flume/internal/transform"
	"flume/stream"
	"flume/through"
)

// Stage is one named transform step of a pipeline.
type Stage struct {
	name    string
	fns     transform.Funcs
	timeout time.Duration
	ack     frame.AckFunc
	s       *stream.Transform
}

func newStage(name string, fns transform.Funcs, hwm int, timeout time.Duration, ack frame.AckFunc) *Stage {
	st := &Stage{name: name, fns: fns, timeout: timeout, ack: ack}
	var flush through.FlushFunc
	if fns.Flush != nil {
		flush = st.flush
	}
	st.s = through.Obj(st.transform, flush,
		through.WithHighWaterMark(hwm),
		through.WithLogger(logging.L().With("stage", name)),
		through.WithOnError(func(err error) {
			logging.L().Error("stage failed", "stage", name, "err", err)
		}),
	)
	return st
}

func (st *Stage) Name() string { return st.name }

func (st *Stage) transform(ctx context.Context, p through.Pusher, chunk any) (any, error) {
	if st.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.timeout)
		defer cancel()
	}

	cp := &countingPusher{p: p}
	started := time.Now()
	v, err := st.fns.Transform(ctx, cp, chunk)

	emitted := int(cp.n.Load())
	if v != nil {
		emitted++
	}
	telemetry.ObserveCall(st.name, started, emitted, err)

	// a frame that produced nothing will never reach a sink, so settle it here
	if err == nil && emitted == 0 && st.ack != nil {
		if f, ok := chunk.(*frame.Frame); ok && f.Checkpoint != nil {
			st.ack(f.Checkpoint)
		}
	}
	return v, err
}

func (st *Stage) flush(ctx context.Context, p through.Pusher) (any, error) {
	cp := &countingPusher{p: p}
	v, err := st.fns.Flush(ctx, cp)
	emitted := int(cp.n.Load())
	if v != nil {
		emitted++
	}
	telemetry.ObserveFlush(st.name, emitted, err)
	return v, err
}

type countingPusher struct {
	p through.Pusher
	n atomic.Int64
}

func (c *countingPusher) Push(chunk any) error {
	if err := c.p.Push(chunk); err != nil {
		return err
	}
	c.n.Add(1)
	return nil
}
