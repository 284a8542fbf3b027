package source

import (
	"context"
	"fmt"

	"flume/frame"
)

// EmitFunc hands one frame to the first pipeline stage. It blocks while the
// stage is applying back-pressure.
type EmitFunc func(context.Context, *frame.Frame) error

// Adapter is the common behaviour every source exposes. Run returns nil
// once the source is exhausted or ctx is cancelled.
type Adapter interface {
	Configure(any) error
	Run(context.Context, EmitFunc) error
	Close() error
}

// AckAware sources want to hear when a sink has durably handled a frame.
type AckAware interface {
	OnAck(*frame.Checkpoint)
}

/*──────── registry ───────*/

type Factory func() Adapter

var registry = map[string]Factory{}

// Register is called from each driver's init().
func Register(name string, f Factory) { registry[name] = f }

// NewAdapter returns a source by name ("kafka/sarama", "stdin", …).
func NewAdapter(name string) (Adapter, error) {
	if f, ok := registry[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("source: unsupported driver %q", name)
}
