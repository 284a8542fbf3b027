package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

type Readable interface {
	// ReadChunk returns io.EOF once the source is exhausted.
	ReadChunk(ctx context.Context) (any, error)
}

type Writable interface {
	WriteChunk(ctx context.Context, chunk any) error
	End(ctx context.Context) error
}

type Duplex interface {
	Readable
	Writable
}

// Destroyer is implemented by streams that can be torn down on failure.
type Destroyer interface {
	Destroy(err error)
}

// Waiter is implemented by writables that finish asynchronously after End.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Pipe copies chunks from src to dst until src is exhausted, then ends dst.
// It does not wait for dst to finish.
func Pipe(ctx context.Context, src Readable, dst Writable) error {
	for {
		c, err := src.ReadChunk(ctx)
		if errors.Is(err, io.EOF) {
			return dst.End(ctx)
		}
		if err != nil {
			return err
		}
		if err := dst.WriteChunk(ctx, c); err != nil {
			return err
		}
	}
}

// Pipeline connects src -> stages... -> dst, one goroutine per hop, and
// waits until dst is done. The first error from any hop or stage destroys
// every stage and is returned.
func Pipeline(ctx context.Context, src Readable, dst Writable, stages ...Duplex) error {
	g, gctx := errgroup.WithContext(ctx)

	hops := make([]Writable, 0, len(stages)+1)
	for _, st := range stages {
		hops = append(hops, st)
	}
	hops = append(hops, dst)

	var from Readable = src
	for _, to := range hops {
		hopFrom, hopTo := from, to
		g.Go(func() error { return Pipe(gctx, hopFrom, hopTo) })
		if w, ok := to.(Waiter); ok {
			g.Go(func() error { return w.Wait(gctx) })
		}
		// the next hop reads what this one writes
		if r, ok := to.(Readable); ok {
			from = r
		}
	}

	err := g.Wait()
	if err != nil {
		for _, h := range hops {
			if d, ok := h.(Destroyer); ok {
				d.Destroy(err)
			}
		}
		if d, ok := src.(Destroyer); ok {
			d.Destroy(err)
		}
	}
	return err
}

/*──────── sources & sinks ───────*/

type sliceSource struct {
	vals []any
	pos  int
}

// FromSlice returns a Readable that yields values in order.
func FromSlice(values ...any) Readable {
	return &sliceSource{vals: values}
}

func (s *sliceSource) ReadChunk(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.vals) {
		return nil, io.EOF
	}
	v := s.vals[s.pos]
	s.pos++
	return v, nil
}

// Collect reads r until io.EOF and returns every chunk. On error it returns
// the chunks read so far together with the error.
func Collect(ctx context.Context, r Readable) ([]any, error) {
	var out []any
	for {
		c, err := r.ReadChunk(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
}

// Concat reads r until io.EOF and joins byte or string chunks.
func Concat(ctx context.Context, r Readable) ([]byte, error) {
	var buf bytes.Buffer
	for {
		c, err := r.ReadChunk(ctx)
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return buf.Bytes(), err
		}
		switch v := c.(type) {
		case []byte:
			buf.Write(v)
		case string:
			buf.WriteString(v)
		default:
			return buf.Bytes(), fmt.Errorf("%w: cannot concat %T", ErrInvalidChunk, c)
		}
	}
}

// Collector is a Writable that keeps every chunk written to it.
type Collector struct {
	chunks []any
	done   chan struct{}
	once   sync.Once
}

func NewCollector() *Collector { return &Collector{done: make(chan struct{})} }

func (c *Collector) WriteChunk(_ context.Context, chunk any) error {
	c.chunks = append(c.chunks, chunk)
	return nil
}

func (c *Collector) End(context.Context) error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Collector) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Chunks is only safe to call once Wait has returned.
func (c *Collector) Chunks() []any { return c.chunks }
