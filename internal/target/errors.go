package target

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a target could not be resolved.
type ErrorKind int

const (
	NotFound ErrorKind = iota
	ServiceUnavailable
	Timeout
	InvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case ServiceUnavailable:
		return "service_unavailable"
	case Timeout:
		return "timeout"
	case InvalidInput:
		return "invalid_input"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ResolutionError is the only error type returned by Target.Resolve.
type ResolutionError struct {
	Kind   ErrorKind
	Target string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %s: %s", e.Target, e.Kind)
	}
	return fmt.Sprintf("resolve %s: %s: %v", e.Target, e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a ResolutionError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *ResolutionError
	return errors.As(err, &re) && re.Kind == kind
}

// notFound is implemented by resolver errors that mean the service
// answered but has no such object.
type notFound interface {
	NotFound() bool
}

// classify maps a resolver error onto a ResolutionError. A lookup that ran
// out of time is Timeout even if the resolver reported a transport error.
func classify(ctx context.Context, t Target, err error) error {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re
	}

	kind := ServiceUnavailable
	var nf notFound
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = Timeout
	case errors.Is(err, ErrNotFound), errors.As(err, &nf) && nf.NotFound():
		kind = NotFound
	}
	return &ResolutionError{Kind: kind, Target: t.String(), Err: err}
}
