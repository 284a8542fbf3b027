// Package frame is the unit the pipeline engine moves between its source,
// transform stages and sinks.
package frame

import "time"

// Checkpoint identifies where a frame came from so a sink can acknowledge it.
type Checkpoint struct {
	Topic     string
	Partition int32
	Offset    int64
}

type Frame struct {
	Key        []byte
	Value      []byte
	Headers    map[string][]byte
	Ts         time.Time
	Checkpoint *Checkpoint // nil for sources without acknowledgement
}

// WithValue returns a shallow copy of f carrying v.
func (f *Frame) WithValue(v []byte) *Frame {
	out := *f
	out.Value = v
	return &out
}

// AckFunc acknowledges a checkpoint back to its source.
type AckFunc func(*Checkpoint)
