// Package stdin is a line-oriented source: every input line becomes one
// frame. It has no checkpoints, so nothing is acknowledged.
package stdin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"flume/frame"
	"flume/source"
)

type Config struct {
	Reader  io.Reader // defaults to os.Stdin
	MaxLine int       // bytes; defaults to 1 MiB
}

type driver struct {
	cfg Config
}

func (d *driver) Configure(raw any) error {
	switch c := raw.(type) {
	case nil:
	case Config:
		d.cfg = c
	default:
		return fmt.Errorf("stdin-source: expected Config, got %T", raw)
	}
	if d.cfg.Reader == nil {
		d.cfg.Reader = os.Stdin
	}
	if d.cfg.MaxLine <= 0 {
		d.cfg.MaxLine = 1 << 20
	}
	return nil
}

func (d *driver) Run(ctx context.Context, emit source.EmitFunc) error {
	sc := bufio.NewScanner(d.cfg.Reader)
	sc.Buffer(make([]byte, 0, 64*1024), d.cfg.MaxLine)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := append([]byte(nil), sc.Bytes()...)
		if err := emit(ctx, &frame.Frame{Value: line, Ts: time.Now()}); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (d *driver) Close() error { return nil }

func init() {
	source.Register("stdin", func() source.Adapter { return &driver{} })
}
