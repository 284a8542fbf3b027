package transform

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flume/frame"
	"flume/internal/spec"
)

type pushRecorder struct{ got []any }

func (p *pushRecorder) Push(c any) error {
	p.got = append(p.got, c)
	return nil
}

func call(t *testing.T, ts spec.TransformerSpec, in *frame.Frame) (any, *pushRecorder) {
	t.Helper()
	fs, err := Build(ts)
	require.NoError(t, err)
	p := &pushRecorder{}
	out, err := fs.Transform(context.Background(), p, in)
	require.NoError(t, err)
	return out, p
}

func TestUppercase(t *testing.T) {
	in := &frame.Frame{Value: []byte("hello"), Checkpoint: &frame.Checkpoint{Offset: 3}}
	out, _ := call(t, spec.TransformerSpec{Name: "u", Type: "uppercase"}, in)

	f := out.(*frame.Frame)
	assert.Equal(t, "HELLO", string(f.Value))
	assert.Same(t, in.Checkpoint, f.Checkpoint)
	assert.Equal(t, "hello", string(in.Value), "input frame untouched")
}

func TestJSONTag(t *testing.T) {
	in := &frame.Frame{Value: []byte(`{"context":{"event":"click"}}`)}
	out, _ := call(t, spec.TransformerSpec{Name: "tagger", Type: "json_tag"}, in)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(out.(*frame.Frame).Value, &obj))
	assert.Equal(t, "tagger", obj["_transformed"])
	assert.Equal(t, map[string]any{"event": "click"}, obj["context"])

	out, _ = call(t, spec.TransformerSpec{Name: "tagger", Type: "json_tag"}, &frame.Frame{Value: []byte("plain")})
	assert.Equal(t, "PLAIN", string(out.(*frame.Frame).Value))
}

func TestDropEmpty(t *testing.T) {
	out, p := call(t, spec.TransformerSpec{Name: "d", Type: "drop_empty"}, &frame.Frame{Value: []byte("  ")})
	assert.Nil(t, out)
	assert.Empty(t, p.got)
}

func TestSplitPushes(t *testing.T) {
	out, p := call(t, spec.TransformerSpec{Name: "s", Type: "split", Params: map[string]string{"separator": ";"}},
		&frame.Frame{Value: []byte("a;b;c")})
	assert.Nil(t, out)
	require.Len(t, p.got, 3)
	assert.Equal(t, "c", string(p.got[2].(*frame.Frame).Value))
}

func TestTrailer(t *testing.T) {
	_, err := Build(spec.TransformerSpec{Name: "t", Type: "trailer"})
	require.Error(t, err)

	fs, err := Build(spec.TransformerSpec{Name: "t", Type: "trailer", Params: map[string]string{"value": "EOF"}})
	require.NoError(t, err)
	require.NotNil(t, fs.Flush)
	v, err := fs.Flush(context.Background(), &pushRecorder{})
	require.NoError(t, err)
	assert.Equal(t, "EOF", string(v.(*frame.Frame).Value))
}

func TestBuildUnknownType(t *testing.T) {
	_, err := Build(spec.TransformerSpec{Name: "x", Type: "grpc"})
	require.Error(t, err)
	assert.Contains(t, Types(), "uppercase")
}

func TestRejectsNonFrames(t *testing.T) {
	fs, err := Build(spec.TransformerSpec{Name: "u", Type: "uppercase"})
	require.NoError(t, err)
	_, err = fs.Transform(context.Background(), &pushRecorder{}, "raw")
	require.Error(t, err)
}
