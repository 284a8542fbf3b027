package through

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flume/stream"
)

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// run pipes values through s and returns the concatenated output.
func run(t *testing.T, s *stream.Transform, values ...any) ([]byte, error) {
	t.Helper()
	ctx := ctxT(t)
	go func() { _ = stream.Pipe(ctx, stream.FromSlice(values...), s) }()
	return stream.Concat(ctx, s)
}

func TestSimpleTransform(t *testing.T) {
	s := New(func(ctx context.Context, _ Pusher, chunk any) (any, error) {
		res := make(chan any, 1)
		go func() { res <- chunk }()
		select {
		case v := <-res:
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, nil)

	out, err := run(t, s, "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "helloworld", string(out))
}

func TestTransformWithPush(t *testing.T) {
	s := New(func(_ context.Context, p Pusher, chunk any) (any, error) {
		return nil, p.Push(chunk)
	}, nil)

	out, err := run(t, s, "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "helloworld", string(out))
}

func TestChangingTransform(t *testing.T) {
	s := New(func(_ context.Context, _ Pusher, chunk any) (any, error) {
		return strings.ToUpper(string(chunk.([]byte))), nil
	}, nil)

	out, err := run(t, s, "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "HELLOWORLD", string(out))
}

func TestRejection(t *testing.T) {
	whoops := errors.New("Whoops")
	var calls, errs atomic.Int32
	s := New(func(context.Context, Pusher, any) (any, error) {
		calls.Add(1)
		return nil, whoops
	}, nil, WithOnError(func(error) { errs.Add(1) }))

	out, err := run(t, s, "hello", "world")
	require.ErrorIs(t, err, whoops)
	assert.Empty(t, out)
	assert.Equal(t, int32(1), calls.Load(), "no chunk after the failing one")
	assert.Equal(t, int32(1), errs.Load())
}

func TestThrowing(t *testing.T) {
	whoops := errors.New("Whoops")
	s := New(func(context.Context, Pusher, any) (any, error) {
		panic(whoops)
	}, nil)

	_, err := run(t, s, "hello", "world")
	require.ErrorIs(t, err, whoops)
}

func TestThrowingNonError(t *testing.T) {
	s := New(func(context.Context, Pusher, any) (any, error) {
		panic("boom")
	}, nil)

	_, err := run(t, s, "hello")
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "boom", pe.Value)
}

func TestPartialOutputThenError(t *testing.T) {
	whoops := errors.New("Whoops")
	s := New(func(_ context.Context, p Pusher, chunk any) (any, error) {
		if string(chunk.([]byte)) == "b" {
			if err := p.Push("pushed-before-failing"); err != nil {
				return nil, err
			}
			return nil, whoops
		}
		return chunk, nil
	}, func(context.Context, Pusher) (any, error) {
		t.Error("flush must not run after a failure")
		return nil, nil
	})

	out, err := run(t, s, "a", "b", "c")
	require.ErrorIs(t, err, whoops)
	assert.Equal(t, "apushed-before-failing", string(out))
}

func TestUnpiped(t *testing.T) {
	const values = 100
	data := make([]any, 0, values)
	for i := values; i > 0; i-- {
		data = append(data, i-1)
	}

	var seen atomic.Int32
	out := Obj(func(context.Context, Pusher, any) (any, error) {
		seen.Add(1)
		return nil, nil
	}, nil)

	ctx := ctxT(t)
	require.NoError(t, stream.Pipe(ctx, stream.FromSlice(data...), out))
	require.NoError(t, out.Wait(ctx))
	assert.Equal(t, int32(values), seen.Load())
}

func TestFlushFunction(t *testing.T) {
	s := New(
		func(_ context.Context, _ Pusher, chunk any) (any, error) { return chunk, nil },
		func(context.Context, Pusher) (any, error) { return "!", nil },
	)

	ctx := ctxT(t)
	sink := stream.NewCollector()
	require.NoError(t, stream.Pipeline(ctx, stream.FromSlice("hello", "world"), sink, s))

	var b strings.Builder
	for _, c := range sink.Chunks() {
		b.Write(c.([]byte))
	}
	assert.Equal(t, "helloworld!", b.String())
}

func TestFlushFunctionWithPush(t *testing.T) {
	s := New(
		func(_ context.Context, p Pusher, chunk any) (any, error) { return nil, p.Push(chunk) },
		func(_ context.Context, p Pusher) (any, error) { return nil, p.Push("!") },
	)

	out, err := run(t, s, "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "helloworld!", string(out))
}

func TestFlushRunsOnceAfterLastChunk(t *testing.T) {
	var (
		mu    sync.Mutex
		trace []string
	)
	record := func(s string) {
		mu.Lock()
		trace = append(trace, s)
		mu.Unlock()
	}

	s := Obj(func(_ context.Context, _ Pusher, chunk any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		record(chunk.(string))
		return nil, nil
	}, func(context.Context, Pusher) (any, error) {
		record("flush")
		return nil, nil
	})

	_, err := run(t, s, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "flush"}, trace)
}

func TestFlushError(t *testing.T) {
	whoops := errors.New("flush failed")
	s := New(
		func(_ context.Context, _ Pusher, chunk any) (any, error) { return chunk, nil },
		func(context.Context, Pusher) (any, error) { return nil, whoops },
	)

	out, err := run(t, s, "hello")
	require.ErrorIs(t, err, whoops)
	assert.Equal(t, "hello", string(out))
}

func TestPushAndReturnBothEmitted(t *testing.T) {
	s := Obj(func(_ context.Context, p Pusher, chunk any) (any, error) {
		if err := p.Push(chunk.(int) * 10); err != nil {
			return nil, err
		}
		return chunk.(int) * 100, nil
	}, nil)

	ctx := ctxT(t)
	go func() { _ = stream.Pipe(ctx, stream.FromSlice(1, 2), s) }()
	got, err := stream.Collect(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []any{10, 100, 20, 200}, got)
}

func TestOrderPreservedWithVariableLatency(t *testing.T) {
	s := Obj(func(_ context.Context, p Pusher, chunk any) (any, error) {
		n := chunk.(int)
		time.Sleep(time.Duration(5-n%5) * time.Millisecond)
		if err := p.Push(n); err != nil {
			return nil, err
		}
		return -n, nil
	}, nil)

	in := make([]any, 20)
	var want []any
	for i := range in {
		in[i] = i
		want = append(want, i, -i)
	}

	ctx := ctxT(t)
	go func() { _ = stream.Pipe(ctx, stream.FromSlice(in...), s) }()
	got, err := stream.Collect(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNoConcurrentInvocations(t *testing.T) {
	var inFlight, peak atomic.Int32
	s := Obj(func(context.Context, Pusher, any) (any, error) {
		n := inFlight.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}, nil)

	in := make([]any, 30)
	for i := range in {
		in[i] = i
	}
	ctx := ctxT(t)
	require.NoError(t, stream.Pipe(ctx, stream.FromSlice(in...), s))
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, int32(1), peak.Load())
}

func TestByteModeRejectsObjects(t *testing.T) {
	s := New(func(context.Context, Pusher, any) (any, error) {
		return struct{}{}, nil
	}, nil)

	_, err := run(t, s, "x")
	require.ErrorIs(t, err, stream.ErrInvalidChunk)
}

func TestDestroyIgnoresInFlightResult(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := Obj(func(context.Context, Pusher, any) (any, error) {
		close(started)
		<-release
		return "late", nil
	}, nil)

	ctx := ctxT(t)
	require.NoError(t, s.WriteChunk(ctx, "x"))
	<-started
	s.Destroy(nil)
	close(release)

	_, err := s.ReadChunk(ctx)
	require.ErrorIs(t, err, stream.ErrDestroyed)
}

func TestClassify(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		pushed int
		v      any
		err    error
		want   OutcomeKind
	}{
		{"nothing", 0, nil, nil, PushedOnly},
		{"pushed", 2, nil, nil, PushedOnly},
		{"returned", 0, "x", nil, Returned},
		{"both", 1, "x", nil, Returned},
		{"error wins", 1, "x", boom, Failed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := classify(tc.pushed, tc.v, tc.err)
			assert.Equal(t, tc.want, o.Kind)
			assert.Equal(t, tc.pushed, o.Pushed)
			if tc.want == Failed {
				assert.Nil(t, o.Value)
				assert.ErrorIs(t, o.Err, boom)
			}
		})
	}
}

func TestIgnoredInvalidPushFailsStream(t *testing.T) {
	var calls atomic.Int32
	s := New(func(_ context.Context, p Pusher, chunk any) (any, error) {
		calls.Add(1)
		_ = p.Push(struct{}{})
		return chunk, nil
	}, nil)

	out, err := run(t, s, "a", "b")
	require.ErrorIs(t, err, stream.ErrInvalidChunk)
	assert.Empty(t, out)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIgnoredInvalidPushInFlushFailsStream(t *testing.T) {
	s := New(
		func(_ context.Context, _ Pusher, chunk any) (any, error) { return chunk, nil },
		func(_ context.Context, p Pusher) (any, error) {
			_ = p.Push(42)
			return nil, nil
		},
	)

	out, err := run(t, s, "a")
	require.ErrorIs(t, err, stream.ErrInvalidChunk)
	assert.Equal(t, "a", string(out))
}

func TestPipelineOfStagesReachesSink(t *testing.T) {
	upper := New(func(_ context.Context, _ Pusher, chunk any) (any, error) {
		return strings.ToUpper(string(chunk.([]byte))), nil
	}, nil)
	bang := New(func(_ context.Context, _ Pusher, chunk any) (any, error) {
		return append(chunk.([]byte), '!'), nil
	}, func(context.Context, Pusher) (any, error) { return "end", nil })

	ctx := ctxT(t)
	sink := stream.NewCollector()
	require.NoError(t, stream.Pipeline(ctx, stream.FromSlice("a", "b", "c", "d"), sink, upper, bang))

	var got []string
	for _, c := range sink.Chunks() {
		got = append(got, string(c.([]byte)))
	}
	assert.Equal(t, []string{"A!", "B!", "C!", "D!", "end"}, got)
}
