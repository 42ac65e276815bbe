// Package service holds what the domain services share.
package service

import "fmt"

// ValidationError reports caller input that can never succeed as sent.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func Validation(msg string) error {
	return &ValidationError{msg: msg}
}

func Validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}
