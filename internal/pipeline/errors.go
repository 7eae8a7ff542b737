package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures.
type Kind string

const (
	KindInvalidRequest             Kind = "InvalidRequest"
	KindInvalidSourceURL           Kind = "InvalidSourceUrl"
	KindTransferFailure            Kind = "TransferFailure"
	KindTranscodeSubmissionFailure Kind = "TranscodeSubmissionFailure"
	KindSchemaMismatch             Kind = "SchemaMismatch"
	KindRecordWriteFailure         Kind = "RecordWriteFailure"
)

// Error is a classified failure raised at a component boundary.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E builds a classified error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

var (
	ErrInvalidRequest             = &Error{Kind: KindInvalidRequest}
	ErrInvalidSourceURL           = &Error{Kind: KindInvalidSourceURL}
	ErrTransferFailure            = &Error{Kind: KindTransferFailure}
	ErrTranscodeSubmissionFailure = &Error{Kind: KindTranscodeSubmissionFailure}
	ErrSchemaMismatch             = &Error{Kind: KindSchemaMismatch}
	ErrRecordWriteFailure         = &Error{Kind: KindRecordWriteFailure}
)

// ErrMalformed marks an inbound message that can never be processed.
var ErrMalformed = errors.New("malformed message")

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
