package sink

import (
	"fmt"

	"flume/frame"
)

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(any) error     // driver-specific config struct
	Push(*frame.Frame) error // consume one frame
	Close() error            // idempotent
}

// AckAware is optional; sinks that acknowledge frames implement it and the
// compiler wires the callback if present.
type AckAware interface {
	BindAck(frame.AckFunc)
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
