package evidencerecord

import (
	"errors"
	"fmt"
)

// Kind classifies structural failures.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindDigestMismatch
	KindNamingViolation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindDigestMismatch:
		return "digest mismatch"
	case KindNamingViolation:
		return "naming violation"
	default:
		return "unknown"
	}
}

// Error is a structural failure of an evidence record or its manifest.
type Error struct {
	Kind Kind
	// Name is the offending document, algorithm or file name.
	Name string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Msg
}

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels to match structural failures by kind with errors.Is.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrDigestMismatch  = &Error{Kind: KindDigestMismatch}
	ErrNamingViolation = &Error{Kind: KindNamingViolation}
)

// ErrAmbiguousDocument indicates a reference that cannot be attributed to one
// of several documents because it carries no document name.
var ErrAmbiguousDocument = errors.New("ambiguous document reference")

func newError(kind Kind, name, format string, args ...any) *Error {
	return &Error{Kind: kind, Name: name, Msg: fmt.Sprintf(format, args...)}
}
