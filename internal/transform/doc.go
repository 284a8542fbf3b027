// Package transform holds the named stage functions a pipeline file can
// reference. Each factory turns a TransformerSpec into a through.TransformFunc
// (and optionally a FlushFunc) operating on *frame.Frame chunks.
package transform
