package core

import "github.com/pkg/errors"

// ErrPermissionDenied is returned by record stores when the backing store rejects an operation
// because of its own access rules.
var ErrPermissionDenied = errors.New("permission denied by record store")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

// StoreError is a record or blob store failure whose message is fit to be shown to the user.
type StoreError struct {
	Err error
}

func NewStoreError(err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Err: err}
}

func (err StoreError) Error() string {
	return errors.Cause(err.Err).Error()
}

func (err StoreError) Unwrap() error {
	return err.Err
}
