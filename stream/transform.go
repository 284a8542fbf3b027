package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

const defaultHighWaterMark = 16

var (
	ErrInvalidChunk  = errors.New("stream: invalid chunk")
	ErrWriteAfterEnd = errors.New("stream: write after end")
	ErrDestroyed     = errors.New("stream: destroyed")
)

// DoneFunc signals completion of one hook invocation. A non-nil data is
// pushed before the next chunk is taken. Only the first call counts.
type DoneFunc func(err error, data any)

type TransformHook func(ctx context.Context, s *Transform, chunk any, done DoneFunc)

type FlushHook func(ctx context.Context, s *Transform, done DoneFunc)

type Options struct {
	// ObjectMode lets chunks be arbitrary non-nil values. Otherwise only
	// []byte and string are accepted and strings are converted to []byte.
	ObjectMode bool
	// HighWaterMark bounds the write queue and the readable buffer, in chunks.
	HighWaterMark int
	// OnError is called at most once, with the first failure.
	OnError func(error)
}

// Transform is a duplex stream: chunks written to it are handed one at a
// time to a TransformHook, and whatever the hook pushes becomes readable on
// the other side in order.
type Transform struct {
	opts      Options
	transform TransformHook
	flush     FlushHook

	in  chan any
	out chan any

	ctx    context.Context
	cancel context.CancelFunc

	ended    chan struct{} // closed once the readable side has nothing more to produce
	endOnce  sync.Once
	dead     chan struct{} // closed by Destroy
	deadOnce sync.Once

	mu  sync.Mutex // guards err
	err error

	// End waits until writers that were admitted before it have enqueued,
	// then closes endc; the worker drains in before finishing.
	wmu      sync.Mutex
	ending   bool
	writers  int
	idle     chan struct{} // closed once ending and writers == 0
	endc     chan struct{}
	endcOnce sync.Once

	rmu  sync.Mutex // guards rbuf for io.Reader
	rbuf []byte
}

// NewTransform starts the worker goroutine. flush may be nil.
func NewTransform(opts Options, transform TransformHook, flush FlushHook) *Transform {
	if opts.HighWaterMark <= 0 {
		opts.HighWaterMark = defaultHighWaterMark
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Transform{
		opts:      opts,
		transform: transform,
		flush:     flush,
		in:        make(chan any, opts.HighWaterMark),
		out:       make(chan any, opts.HighWaterMark),
		ctx:       ctx,
		cancel:    cancel,
		ended:     make(chan struct{}),
		dead:      make(chan struct{}),
		endc:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Transform) ObjectMode() bool { return s.opts.ObjectMode }

/*──────── writable side ───────*/

// WriteChunk queues one chunk for the transform hook. It blocks while the
// write queue is full.
func (s *Transform) WriteChunk(ctx context.Context, chunk any) error {
	c, err := s.normalize(chunk)
	if err != nil {
		return err
	}

	if err := s.Err(); err != nil {
		return err
	}

	s.wmu.Lock()
	if s.ending {
		s.wmu.Unlock()
		return ErrWriteAfterEnd
	}
	s.writers++
	s.wmu.Unlock()
	defer s.leave()

	select {
	case s.in <- c:
		return nil
	case <-s.ended:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrWriteAfterEnd
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End marks the end of input. The flush hook runs once every chunk accepted
// before End has been transformed. Calling End again is a no-op. End never
// waits for queue space, only for writers already blocked in WriteChunk,
// and it gives up when ctx is done.
func (s *Transform) End(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.wmu.Lock()
	if !s.ending {
		s.ending = true
		s.idle = make(chan struct{})
		if s.writers == 0 {
			close(s.idle)
		}
	}
	idle := s.idle
	s.wmu.Unlock()

	select {
	case <-idle:
		s.endcOnce.Do(func() { close(s.endc) })
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Transform) leave() {
	s.wmu.Lock()
	s.writers--
	if s.ending && s.writers == 0 {
		select {
		case <-s.idle:
		default:
			close(s.idle)
		}
	}
	s.wmu.Unlock()
}

// Write implements io.Writer. p is copied since the chunk outlives the call.
func (s *Transform) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	if err := s.WriteChunk(context.Background(), buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer by ending the input.
func (s *Transform) Close() error { return s.End(context.Background()) }

/*──────── readable side ───────*/

// Push appends a chunk to the readable buffer, blocking while it is full.
func (s *Transform) Push(chunk any) error {
	c, err := s.normalize(chunk)
	if err != nil {
		return err
	}
	select {
	case <-s.ended:
		return s.closedErr()
	default:
	}
	select {
	case s.out <- c:
		return nil
	case <-s.ended:
		return s.closedErr()
	}
}

// ReadChunk returns the next output chunk. After a clean end it returns
// io.EOF; after a failure it returns the failure once the chunks produced
// before it have been read.
func (s *Transform) ReadChunk(ctx context.Context) (any, error) {
	select {
	case <-s.dead:
		return nil, s.destroyedErr()
	default:
	}
	select {
	case c := <-s.out:
		return c, nil
	case <-s.ended:
		select {
		case c := <-s.out:
			return c, nil
		default:
		}
		if err := s.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Read implements io.Reader over byte chunks.
func (s *Transform) Read(p []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	for len(s.rbuf) == 0 {
		c, err := s.ReadChunk(context.Background())
		if err != nil {
			return 0, err
		}
		b, ok := c.([]byte)
		if !ok {
			if str, isStr := c.(string); isStr {
				b = []byte(str)
			} else {
				return 0, fmt.Errorf("%w: %T is not bytes", ErrInvalidChunk, c)
			}
		}
		s.rbuf = b
	}
	n := copy(p, s.rbuf)
	s.rbuf = s.rbuf[n:]
	return n, nil
}

/*──────── lifecycle ───────*/

// Done is closed when the stream has finished, failed or been destroyed.
func (s *Transform) Done() <-chan struct{} { return s.ended }

// Err returns the first failure, ErrDestroyed after Destroy(nil), or nil.
func (s *Transform) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the stream is done and returns Err.
func (s *Transform) Wait(ctx context.Context) error {
	select {
	case <-s.ended:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Destroy stops the stream. No further hooks are invoked; one already in
// flight is not waited for and its result is dropped. Buffered output is
// discarded. A nil err records ErrDestroyed without calling OnError.
func (s *Transform) Destroy(err error) {
	if err == nil {
		s.setErr(ErrDestroyed, false)
	} else {
		s.setErr(err, true)
	}
	s.deadOnce.Do(func() { close(s.dead) })
	s.cancel()
	s.close()
}

func (s *Transform) destroyedErr() error {
	if err := s.Err(); err != nil {
		return err
	}
	return ErrDestroyed
}

func (s *Transform) fail(err error) {
	s.setErr(err, true)
	s.close()
	s.cancel()
}

func (s *Transform) setErr(err error, notify bool) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.ended:
		// finished cleanly already
		s.mu.Unlock()
		return
	default:
	}
	s.err = err
	s.mu.Unlock()
	if notify && s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

func (s *Transform) close() { s.endOnce.Do(func() { close(s.ended) }) }

func (s *Transform) closedErr() error {
	if err := s.Err(); err != nil {
		return err
	}
	return ErrWriteAfterEnd
}

func (s *Transform) normalize(chunk any) (any, error) {
	if chunk == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidChunk)
	}
	if s.opts.ObjectMode {
		return chunk, nil
	}
	switch v := chunk.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%w: %T in byte mode", ErrInvalidChunk, chunk)
	}
}

/*──────── worker ───────*/

func (s *Transform) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case c := <-s.in:
			if !s.step(c) {
				return
			}
		case <-s.endc:
			// no writer is left, so whatever is queued is all there is
			for len(s.in) > 0 {
				if !s.step(<-s.in) {
					return
				}
			}
			s.finish()
			return
		}
	}
}

// step transforms one chunk and reports whether the stream is still alive.
func (s *Transform) step(c any) bool {
	if err := s.invoke(func(done DoneFunc) { s.transform(s.ctx, s, c, done) }); err != nil {
		s.fail(err)
		return false
	}
	return true
}

func (s *Transform) finish() {
	if s.flush != nil {
		if err := s.invoke(func(done DoneFunc) { s.flush(s.ctx, s, done) }); err != nil {
			s.fail(err)
			return
		}
	}
	s.close()
	s.cancel()
}

// invoke runs one hook and waits for its DoneFunc, or for the stream to be
// destroyed.
func (s *Transform) invoke(call func(DoneFunc)) error {
	type result struct {
		err  error
		data any
	}
	res := make(chan result, 1)
	var once sync.Once
	call(func(err error, data any) {
		once.Do(func() { res <- result{err: err, data: data} })
	})

	select {
	case r := <-res:
		if r.err != nil {
			return r.err
		}
		if r.data != nil {
			return s.Push(r.data)
		}
		return nil
	case <-s.ctx.Done():
		return s.closedErr()
	}
}

var (
	_ io.Reader = (*Transform)(nil)
	_ io.Writer = (*Transform)(nil)
	_ io.Closer = (*Transform)(nil)
)
