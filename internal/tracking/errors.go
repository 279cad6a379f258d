package tracking

import (
	"errors"
	"fmt"
)

// Kind clasifica los errores de dominio; los handlers los traducen a HTTP
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindOutOfRange   Kind = "out_of_range"
	KindPrecondition Kind = "precondition"
	KindInternal     Kind = "internal"
)

// Error de dominio. Distance y Radius solo se llenan para KindOutOfRange.
type Error struct {
	Kind     Kind
	Message  string
	Distance float64
	Radius   float64
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf retorna KindInternal para errores que no son de dominio
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func preconditionf(format string, args ...any) error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

func outOfRange(distance, radius float64) error {
	return &Error{
		Kind:     KindOutOfRange,
		Message:  fmt.Sprintf("too far from stop: %.1fm (max %.0fm)", distance, radius),
		Distance: distance,
		Radius:   radius,
	}
}
