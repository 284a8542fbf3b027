// Package stream is a minimal duplex stream primitive with Node-style
// transform semantics: a single worker hands chunks one at a time to a
// callback-style hook, pushed output is buffered up to a high-water mark,
// and the first failure ends the stream. Chunks are bytes by default or
// arbitrary values in object mode.
package stream
