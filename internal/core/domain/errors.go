package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrRecognitionFailed  = errors.New("recognition failed")
	ErrUnknownProductLine = errors.New("unknown product line")
	ErrSessionNotFound    = errors.New("session not found")
	ErrVersionConflict    = errors.New("session version conflict")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// InvalidInput builds an input error from a plain message.
func InvalidInput(operation, message string) error {
	return WrapError(ErrInvalidInput, operation, errors.New(message))
}
