package transform

import (
	"fmt"
	"sort"

	"flume/internal/spec"
	"flume/through"
)

type Funcs struct {
	Transform through.TransformFunc
	Flush     through.FlushFunc // may be nil
}

type Factory func(spec.TransformerSpec) (Funcs, error)

var registry = map[string]Factory{}

func Register(typ string, f Factory) { registry[typ] = f }

// Build resolves t.Type against the registry.
func Build(t spec.TransformerSpec) (Funcs, error) {
	f, ok := registry[t.Type]
	if !ok {
		return Funcs{}, fmt.Errorf("unsupported transformer type %q for %s", t.Type, t.Name)
	}
	fs, err := f(t)
	if err != nil {
		return Funcs{}, fmt.Errorf("transform %s: %w", t.Name, err)
	}
	return fs, nil
}

// Types lists the registered transformer types.
func Types() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
