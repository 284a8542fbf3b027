package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"flume/frame"
	"flume/internal/spec"
	"flume/through"
)

func asFrame(chunk any) (*frame.Frame, error) {
	f, ok := chunk.(*frame.Frame)
	if !ok {
		return nil, fmt.Errorf("transform: expected *frame.Frame, got %T", chunk)
	}
	return f, nil
}

func identity(spec.TransformerSpec) (Funcs, error) {
	return Funcs{Transform: func(_ context.Context, _ through.Pusher, chunk any) (any, error) {
		return chunk, nil
	}}, nil
}

func uppercase(spec.TransformerSpec) (Funcs, error) {
	return Funcs{Transform: func(_ context.Context, _ through.Pusher, chunk any) (any, error) {
		f, err := asFrame(chunk)
		if err != nil {
			return nil, err
		}
		return f.WithValue(bytes.ToUpper(f.Value)), nil
	}}, nil
}

// jsonTag marks JSON object payloads with "_transformed": <stage name>
// and uppercases anything that is not a JSON object.
func jsonTag(t spec.TransformerSpec) (Funcs, error) {
	field := t.Params["field"]
	if field == "" {
		field = "_transformed"
	}
	return Funcs{Transform: func(_ context.Context, _ through.Pusher, chunk any) (any, error) {
		f, err := asFrame(chunk)
		if err != nil {
			return nil, err
		}
		var obj structpb.Struct
		if err := protojson.Unmarshal(f.Value, &obj); err != nil {
			return f.WithValue(bytes.ToUpper(f.Value)), nil
		}
		if obj.Fields == nil {
			obj.Fields = map[string]*structpb.Value{}
		}
		obj.Fields[field] = structpb.NewStringValue(t.Name)
		out, err := protojson.Marshal(&obj)
		if err != nil {
			return nil, err
		}
		return f.WithValue(out), nil
	}}, nil
}

func dropEmpty(spec.TransformerSpec) (Funcs, error) {
	return Funcs{Transform: func(_ context.Context, _ through.Pusher, chunk any) (any, error) {
		f, err := asFrame(chunk)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(f.Value)) == 0 {
			return nil, nil
		}
		return f, nil
	}}, nil
}

// trailer passes frames through and emits one extra frame carrying
// params.value once the input ends.
func trailer(t spec.TransformerSpec) (Funcs, error) {
	v, ok := t.Params["value"]
	if !ok {
		return Funcs{}, errors.New("trailer: params.value is required")
	}
	return Funcs{
		Transform: func(_ context.Context, _ through.Pusher, chunk any) (any, error) {
			return chunk, nil
		},
		Flush: func(context.Context, through.Pusher) (any, error) {
			return &frame.Frame{Value: []byte(v), Ts: time.Now()}, nil
		},
	}, nil
}

// split pushes one frame per separator-delimited part of the payload.
func split(t spec.TransformerSpec) (Funcs, error) {
	sep := t.Params["separator"]
	if sep == "" {
		sep = ","
	}
	return Funcs{Transform: func(_ context.Context, p through.Pusher, chunk any) (any, error) {
		f, err := asFrame(chunk)
		if err != nil {
			return nil, err
		}
		for _, part := range bytes.Split(f.Value, []byte(sep)) {
			if err := p.Push(f.WithValue(part)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}}, nil
}

func init() {
	Register("identity", identity)
	Register("uppercase", uppercase)
	Register("json_tag", jsonTag)
	Register("drop_empty", dropEmpty)
	Register("trailer", trailer)
	Register("split", split)
}
