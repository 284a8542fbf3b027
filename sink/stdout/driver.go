package stdout

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"flume/frame"
	"flume/sink"
)

type Config struct {
	Out           io.Writer // defaults to os.Stdout
	PrintCounter  bool      // prefix each line with a sequence number
	BatchSize     int       // ack after N frames (0 = every frame)
	FlushMS       int       // ack pending frames after this long (0 = off)
	ValueMaxBytes int       // truncate printed values (0 = no limit)
}

type driver struct {
	cfg Config
	ack frame.AckFunc

	mu      sync.Mutex // guards seq, pending, timer and writes to Out
	seq     uint64
	pending []*frame.Checkpoint
	timer   *time.Timer // nil → no timer armed
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	d.cfg = c
	return nil
}

func (d *driver) Push(f *frame.Frame) error {
	v := f.Value
	if m := d.cfg.ValueMaxBytes; m > 0 && len(v) > m {
		v = v[:m]
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	var err error
	if d.cfg.PrintCounter {
		_, err = fmt.Fprintf(d.cfg.Out, "[%06d] %s\n", d.seq, v)
	} else {
		_, err = fmt.Fprintf(d.cfg.Out, "%s\n", v)
	}
	if err != nil {
		return err
	}

	if f.Checkpoint == nil || d.ack == nil {
		return nil
	}
	d.pending = append(d.pending, f.Checkpoint)

	if d.cfg.BatchSize <= 1 || len(d.pending) >= d.cfg.BatchSize {
		d.flushLocked()
		return nil
	}
	if d.cfg.FlushMS > 0 && d.timer == nil {
		d.timer = time.AfterFunc(time.Duration(d.cfg.FlushMS)*time.Millisecond, d.timerFlush)
	}
	return nil
}

func (d *driver) Close() error {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
	return nil
}

func (d *driver) BindAck(fn frame.AckFunc) { d.ack = fn }

func (d *driver) timerFlush() {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
}

// must be called with d.mu held
func (d *driver) flushLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.ack == nil {
		return
	}
	for _, cp := range d.pending {
		d.ack(cp)
	}
	d.pending = d.pending[:0]
}

func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
