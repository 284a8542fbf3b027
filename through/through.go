// Package through builds transform streams from plain Go functions.
//
// A TransformFunc receives one chunk and may emit output two ways: by
// returning a non-nil value, or by calling Push any number of times. Both
// may be used in one call; pushed chunks come first, the returned value
// last. Returning an error (or panicking) fails the stream with that error
// unchanged, and no later chunk is transformed.
//
// Each call runs on its own goroutine and the stream waits for it to return
// before taking the next chunk, so a function may block on I/O freely.
package through

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"flume/stream"
)

// Pusher emits output chunks from inside a TransformFunc or FlushFunc.
type Pusher interface {
	Push(chunk any) error
}

type TransformFunc func(ctx context.Context, p Pusher, chunk any) (any, error)

// FlushFunc runs once after the last chunk has been transformed.
type FlushFunc func(ctx context.Context, p Pusher) (any, error)

type Option func(*settings)

type settings struct {
	opts stream.Options
	log  *slog.Logger
}

func WithObjectMode(on bool) Option {
	return func(s *settings) { s.opts.ObjectMode = on }
}

func WithHighWaterMark(n int) Option {
	return func(s *settings) { s.opts.HighWaterMark = n }
}

// WithOnError registers a callback that receives the stream's single failure.
func WithOnError(fn func(error)) Option {
	return func(s *settings) { s.opts.OnError = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.log = l }
}

// New returns a byte-mode stream (unless WithObjectMode says otherwise)
// that runs fn on every chunk. flush may be nil.
func New(fn TransformFunc, flush FlushFunc, opts ...Option) *stream.Transform {
	var st settings
	for _, o := range opts {
		o(&st)
	}
	a := &adapter{fn: fn, flush: flush, log: st.log}

	var fh stream.FlushHook
	if flush != nil {
		fh = a.flushHook
	}
	return stream.NewTransform(st.opts, a.transformHook, fh)
}

// Obj is New in object mode.
func Obj(fn TransformFunc, flush FlushFunc, opts ...Option) *stream.Transform {
	return New(fn, flush, append([]Option{WithObjectMode(true)}, opts...)...)
}

type adapter struct {
	fn    TransformFunc
	flush FlushFunc
	log   *slog.Logger
}

func (a *adapter) transformHook(ctx context.Context, s *stream.Transform, chunk any, done stream.DoneFunc) {
	go func() {
		o := invoke(s, func(p Pusher) (any, error) { return a.fn(ctx, p, chunk) })
		a.complete("transform", o, done)
	}()
}

func (a *adapter) flushHook(ctx context.Context, s *stream.Transform, done stream.DoneFunc) {
	go func() {
		o := invoke(s, func(p Pusher) (any, error) { return a.flush(ctx, p) })
		a.complete("flush", o, done)
	}()
}

func (a *adapter) complete(phase string, o Outcome, done stream.DoneFunc) {
	switch o.Kind {
	case Failed:
		if a.log != nil {
			a.log.Debug("through: callback failed", "phase", phase, "pushed", o.Pushed, "err", o.Err)
		}
		done(o.Err, nil)
	case Returned:
		done(nil, o.Value)
	default:
		done(nil, nil)
	}
}

// invoke calls f with a counting pusher bound to s and turns its result,
// or a panic, into an Outcome.
func invoke(s *stream.Transform, f func(Pusher) (any, error)) (o Outcome) {
	p := &pusher{s: s}
	defer func() {
		if r := recover(); r != nil {
			o = classify(int(p.n.Load()), nil, fromPanic(r))
		}
	}()
	v, err := f(p)
	if err == nil {
		// a chunk the stream could not accept fails the call even if the
		// function ignored what Push returned
		err = p.rejected()
	}
	return classify(int(p.n.Load()), v, err)
}

type pusher struct {
	s *stream.Transform
	n atomic.Int64

	mu     sync.Mutex
	reject error // first ErrInvalidChunk from Push
}

func (p *pusher) Push(chunk any) error {
	if err := p.s.Push(chunk); err != nil {
		if errors.Is(err, stream.ErrInvalidChunk) {
			p.mu.Lock()
			if p.reject == nil {
				p.reject = err
			}
			p.mu.Unlock()
		}
		return err
	}
	p.n.Add(1)
	return nil
}

func (p *pusher) rejected() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reject
}
