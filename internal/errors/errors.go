package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeIO                 ErrorType = "IO_ERROR"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND"
	ErrorTypeCorruptData        ErrorType = "CORRUPT_DATA"
	ErrorTypeCorruptHistory     ErrorType = "CORRUPT_HISTORY"
	ErrorTypeAlreadyInitialized ErrorType = "ALREADY_INITIALIZED"
	ErrorTypeEmptyCommit        ErrorType = "EMPTY_COMMIT"
	ErrorTypeValidation         ErrorType = "VALIDATION"
)

// Sentinels for errors.Is. Matching is by Type only.
var (
	ErrIO                 = &Error{Type: ErrorTypeIO}
	ErrNotFound           = &Error{Type: ErrorTypeNotFound}
	ErrCorruptData        = &Error{Type: ErrorTypeCorruptData}
	ErrCorruptHistory     = &Error{Type: ErrorTypeCorruptHistory}
	ErrAlreadyInitialized = &Error{Type: ErrorTypeAlreadyInitialized}
	ErrEmptyCommit        = &Error{Type: ErrorTypeEmptyCommit}
	ErrValidation         = &Error{Type: ErrorTypeValidation}
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	// Subject is the digest or path the error is about.
	Subject string `json:"subject,omitempty"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Type)
	}
	if e.Subject != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Subject)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// TypeOf returns the type of the first *Error in err's chain, or "".
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ""
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func IO(subject string, err error) *Error {
	return &Error{
		Type:    ErrorTypeIO,
		Message: "i/o failure",
		Subject: subject,
		Err:     err,
	}
}

func NotFound(subject, message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Subject: subject,
	}
}

func CorruptData(subject, message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeCorruptData,
		Message: message,
		Subject: subject,
		Err:     err,
	}
}

func CorruptHistory(digest string) *Error {
	return &Error{
		Type:    ErrorTypeCorruptHistory,
		Message: "cycle in commit history",
		Subject: digest,
	}
}

func AlreadyInitialized(path string) *Error {
	return &Error{
		Type:    ErrorTypeAlreadyInitialized,
		Message: "already a bud repository",
		Subject: path,
	}
}

func EmptyCommit() *Error {
	return &Error{
		Type:    ErrorTypeEmptyCommit,
		Message: "nothing staged to commit",
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: details,
	}
}
