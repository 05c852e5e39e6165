package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrorKind classifies business-rule failures so callers can render a precise message.
type ErrorKind string

const (
	KindValidationFailed       ErrorKind = "ValidationFailed"
	KindIllegalTransition      ErrorKind = "IllegalTransition"
	KindAttachmentsRequired    ErrorKind = "AttachmentsRequired"
	KindPotentialDuplicate     ErrorKind = "PotentialDuplicate"
	KindVarianceReasonRequired ErrorKind = "VarianceReasonRequired"
	KindNotFound               ErrorKind = "NotFound"
	KindUnauthorized           ErrorKind = "Unauthorized"
)

// Error is returned for every rejected operation. It matches the sentinel of its
// kind under errors.Is.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrValidationFailed       = &Error{Kind: KindValidationFailed}
	ErrIllegalTransition      = &Error{Kind: KindIllegalTransition}
	ErrAttachmentsRequired    = &Error{Kind: KindAttachmentsRequired}
	ErrPotentialDuplicate     = &Error{Kind: KindPotentialDuplicate}
	ErrVarianceReasonRequired = &Error{Kind: KindVarianceReasonRequired}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
)

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...interface{}) *Error {
	return newError(KindValidationFailed, format, args...)
}

func illegalTransition(format string, args ...interface{}) *Error {
	return newError(KindIllegalTransition, format, args...)
}

// KindOf returns the kind of a service error, or "" for infrastructure failures.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// notFoundOr maps gorm's missing-row error to NotFound and wraps anything else.
func notFoundOr(err error, entity string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(KindNotFound, "%s %d not found", entity, id)
	}
	return fmt.Errorf("failed to load %s %d: %w", entity, id, err)
}
