// Package errs defines the error taxonomy shared by the clip pipeline.
//
// Configuration errors are fatal and stop a run before any sample is touched.
// Every other kind is scoped to one record or sample: it is logged, tallied in
// the run summary, and processing continues with the next sample.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindConfiguration    Kind = "configuration"
	KindAdapter          Kind = "adapter"
	KindSampleValidation Kind = "sample_validation"
	KindRender           Kind = "render"
	KindEncode           Kind = "encode"
)

// Sentinels usable with errors.Is.
var (
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrAdapter          = &Error{Kind: KindAdapter}
	ErrSampleValidation = &Error{Kind: KindSampleValidation}
	ErrRender           = &Error{Kind: KindRender}
	ErrEncode           = &Error{Kind: KindEncode}
)

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrEncode) works
// regardless of Op and wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op) && t.Err == nil
}

// E builds a classified error. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration wraps err as a fatal configuration error.
func Configuration(op string, err error) error { return E(KindConfiguration, op, err) }

// Adapter wraps err as a per-record adapter error.
func Adapter(op string, err error) error { return E(KindAdapter, op, err) }

// SampleValidation wraps err as a sample validation error.
func SampleValidation(op string, err error) error { return E(KindSampleValidation, op, err) }

// Render wraps err as a render error.
func Render(op string, err error) error { return E(KindRender, op, err) }

// Encode wraps err as an encode error.
func Encode(op string, err error) error { return E(KindEncode, op, err) }

// KindOf returns the kind of the outermost classified error in err's chain,
// or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return KindOf(err) == KindConfiguration
}
