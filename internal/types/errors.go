package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for leaf conditions.
var (
	// ErrNotFound indicates the rule does not exist in the store.
	ErrNotFound = errors.New("correlation not found")

	// ErrFormulaEmpty indicates a formula with no tokens.
	ErrFormulaEmpty = errors.New("formula is empty")

	// ErrInvalidEvalType indicates an evaluation type that cannot be
	// used where it was given.
	ErrInvalidEvalType = errors.New("invalid evaluation type")

	// ErrDuplicateRuleID indicates a create for a rule ID that is taken.
	ErrDuplicateRuleID = errors.New("correlation ID already exists")

	// ErrNoConditions indicates a formula was requested for zero conditions.
	ErrNoConditions = errors.New("no conditions")
)

// Kind classifies validation and storage failures.
type Kind int

const (
	KindSchema Kind = iota + 1
	KindDuplicate
	KindFormulaSyntax
	KindFormulaConsistency
	KindReference
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindDuplicate:
		return "duplicate"
	case KindFormulaSyntax:
		return "formula_syntax"
	case KindFormulaConsistency:
		return "formula_consistency"
	case KindReference:
		return "reference"
	case KindStorage:
		return "storage"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Kind sentinels for errors.Is.
var (
	ErrSchema             = &Error{Kind: KindSchema, sentinel: true}
	ErrDuplicate          = &Error{Kind: KindDuplicate, sentinel: true}
	ErrFormulaSyntax      = &Error{Kind: KindFormulaSyntax, sentinel: true}
	ErrFormulaConsistency = &Error{Kind: KindFormulaConsistency, sentinel: true}
	ErrReference          = &Error{Kind: KindReference, sentinel: true}
	ErrStorage            = &Error{Kind: KindStorage, sentinel: true}
)

// Error is a classified failure. Path is the 1-based parameter path the
// failure refers to (e.g. /1/filter/conditions/2/tag) and may be empty.
// Pos is the byte offset into the formula for syntax errors, -1 otherwise.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Pos     int
	Cause   error

	sentinel bool
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Path != "" {
		return fmt.Sprintf("invalid parameter %q: %s", e.Path, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches kind sentinels, so errors.Is(err, ErrSchema) holds for every
// schema error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.sentinel {
		return false
	}
	return t.Kind == e.Kind
}

// At returns a copy of e reporting the given path.
func (e *Error) At(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// KindOf returns the kind of err, or zero when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...), Pos: -1}
}

// SchemaError reports a structural problem at path.
func SchemaError(path, format string, args ...any) *Error {
	return newError(KindSchema, path, format, args...)
}

// DuplicateError reports a uniqueness violation at path.
func DuplicateError(path, format string, args ...any) *Error {
	return newError(KindDuplicate, path, format, args...)
}

// FormulaSyntaxError reports a parse failure at byte offset pos.
func FormulaSyntaxError(pos int, format string, args ...any) *Error {
	e := newError(KindFormulaSyntax, "", format, args...)
	e.Pos = pos
	return e
}

// FormulaConsistencyError reports a mismatch between formula letters and
// condition letters.
func FormulaConsistencyError(path, format string, args ...any) *Error {
	return newError(KindFormulaConsistency, path, format, args...)
}

// ReferenceError reports a reference to an unknown object.
func ReferenceError(path, format string, args ...any) *Error {
	return newError(KindReference, path, format, args...)
}

// StorageError wraps an adapter failure. The cause stays reachable through
// errors.Unwrap.
func StorageError(op string, cause error) *Error {
	return &Error{Kind: KindStorage, Message: op + ": " + cause.Error(), Pos: -1, Cause: cause}
}
