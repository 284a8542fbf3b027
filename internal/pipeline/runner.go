package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"flume/frame"
	"flume/internal/logging"
	"flume/internal/telemetry"
	"flume/internal/transform"
	"flume/sink"
	"flume/source"
	"flume/stream"
)

type Runner struct {
	source    source.Adapter
	stages    []*Stage
	sinks     []sink.Adapter
	sinkNames []string
	hwm       int

	mu      sync.Mutex
	subs    []frame.AckFunc
	onState []func(running bool)
	done    chan struct{}
	err     error
}

func NewRunner() *Runner { return &Runner{} }

func (r *Runner) SetSource(s source.Adapter) { r.source = s }
func (r *Runner) SetHighWaterMark(n int)     { r.hwm = n }

func (r *Runner) AddSink(name string, s sink.Adapter) {
	r.sinks = append(r.sinks, s)
	r.sinkNames = append(r.sinkNames, name)
}

// AddStage appends a transform stage. Stages must be added before Start.
func (r *Runner) AddStage(name string, fns transform.Funcs, timeout time.Duration) {
	r.stages = append(r.stages, newStage(name, fns, r.hwm, timeout, r.Ack))
}

func (r *Runner) Stages() []*Stage { return r.stages }

func (r *Runner) SubscribeAck(fn frame.AckFunc) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

// OnStateChange registers fn to hear when the pipeline starts and stops.
func (r *Runner) OnStateChange(fn func(running bool)) {
	r.mu.Lock()
	r.onState = append(r.onState, fn)
	r.mu.Unlock()
}

func (r *Runner) Ack(cp *frame.Checkpoint) {
	r.mu.Lock()
	handlers := append([]frame.AckFunc{}, r.subs...)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(cp)
	}
}

func (r *Runner) setRunning(running bool) {
	r.mu.Lock()
	handlers := append([]func(bool){}, r.onState...)
	r.mu.Unlock()
	for _, fn := range handlers {
		fn(running)
	}
}

/*──────── frame routing ───────*/

func (r *Runner) pushFrame(f *frame.Frame) error {
	for i, s := range r.sinks {
		if err := s.Push(f); err != nil {
			return fmt.Errorf("sink %s: %w", r.sinkNames[i], err)
		}
		telemetry.SinkFrames.WithLabelValues(r.sinkNames[i]).Inc()
	}
	return nil
}

// sinkWriter is the last hop: it fans every frame out to the sinks.
type sinkWriter struct{ r *Runner }

func (w sinkWriter) WriteChunk(_ context.Context, chunk any) error {
	f, ok := chunk.(*frame.Frame)
	if !ok {
		return fmt.Errorf("runner: stage emitted %T, want *frame.Frame", chunk)
	}
	return w.r.pushFrame(f)
}

func (sinkWriter) End(context.Context) error { return nil }

// Start runs source -> stages -> sinks in the background. Cancelling ctx
// stops the source; frames already accepted still drain through every stage
// and flush hooks run. The first stage failure aborts the run.
func (r *Runner) Start(ctx context.Context) error {
	if r.source == nil {
		return errors.New("runner: no source configured")
	}
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return errors.New("runner: already started")
	}
	r.done = make(chan struct{})
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	srcCtx, cancelSrc := context.WithCancel(gctx)
	stop := context.AfterFunc(ctx, cancelSrc)

	hops := make([]stream.Writable, 0, len(r.stages)+1)
	for _, st := range r.stages {
		hops = append(hops, st.s)
	}
	hops = append(hops, sinkWriter{r})
	head := hops[0]

	g.Go(func() error {
		defer cancelSrc()

		// a rejected write means a downstream stage failed; report that
		// failure as-is rather than as a source error
		var (
			emitMu  sync.Mutex
			emitErr error
		)
		err := r.source.Run(srcCtx, func(ctx context.Context, f *frame.Frame) error {
			err := head.WriteChunk(ctx, f)
			if err != nil && ctx.Err() == nil {
				emitMu.Lock()
				if emitErr == nil {
					emitErr = err
				}
				emitMu.Unlock()
			}
			return err
		})
		emitMu.Lock()
		downstream := emitErr
		emitMu.Unlock()
		if downstream != nil {
			return downstream
		}
		// a cancelled source is a normal shutdown
		if err != nil && srcCtx.Err() == nil {
			return fmt.Errorf("source: %w", err)
		}
		if gctx.Err() != nil {
			return nil
		}
		return head.End(gctx)
	})
	for i, st := range r.stages {
		from, to := st.s, hops[i+1]
		g.Go(func() error { return stream.Pipe(gctx, from, to) })
	}

	r.setRunning(true)
	logging.L().Info("pipeline started", "stages", len(r.stages), "sinks", r.sinkNames)

	go func() {
		err := g.Wait()
		stop()
		if err != nil {
			// the failing stage keeps its own error; the rest are only torn down
			for _, st := range r.stages {
				st.s.Destroy(nil)
			}
			logging.L().Error("pipeline stopped", "err", err)
		} else {
			logging.L().Info("pipeline drained")
		}
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		r.setRunning(false)
		close(r.done)
	}()
	return nil
}

// Done is closed once a started pipeline has stopped; nil before Start.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Wait blocks until the pipeline stopped and returns the first failure.
func (r *Runner) Wait(ctx context.Context) error {
	done := r.Done()
	if done == nil {
		return errors.New("runner: not started")
	}
	select {
	case <-done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the source and every sink.
func (r *Runner) Close() error {
	var errs []error
	if r.source != nil {
		errs = append(errs, r.source.Close())
	}
	for _, st := range r.stages {
		st.s.Destroy(nil)
	}
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
