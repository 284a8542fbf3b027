package through

import "fmt"

type OutcomeKind int

const (
	// PushedOnly: nothing returned; whatever was pushed (possibly nothing)
	// is the whole output.
	PushedOnly OutcomeKind = iota
	// Returned: a non-nil value was returned and is emitted after any
	// pushed chunks.
	Returned
	// Failed: the function returned an error or panicked.
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case PushedOnly:
		return "pushed-only"
	case Returned:
		return "returned"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one transform or flush invocation.
type Outcome struct {
	Kind   OutcomeKind
	Pushed int
	Value  any
	Err    error
}

func classify(pushed int, v any, err error) Outcome {
	switch {
	case err != nil:
		return Outcome{Kind: Failed, Pushed: pushed, Err: err}
	case v != nil:
		return Outcome{Kind: Returned, Pushed: pushed, Value: v}
	default:
		return Outcome{Kind: PushedOnly, Pushed: pushed}
	}
}

// PanicError carries a recovered panic value that is not itself an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("through: panic: %v", e.Value) }

func fromPanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &PanicError{Value: r}
}
