package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent failures count against the breaker but are not retried.
	Permanent = ErrorClassification{Retryable: false, RecordFailure: true}
	// Throttled answers are retried without tripping the breaker.
	Throttled = ErrorClassification{Retryable: true, RecordFailure: false}
	// Ignored errors are the caller's own: neither retried nor counted.
	Ignored = ErrorClassification{}
)

// Rule classifies err when it applies to it.
type Rule func(err error) (ErrorClassification, bool)

// When applies class to every error accepted by match.
func When(match func(error) bool, class ErrorClassification) Rule {
	return func(err error) (ErrorClassification, bool) {
		if match(err) {
			return class, true
		}
		return ErrorClassification{}, false
	}
}

// Wrapping matches errors that wrap any of targets.
func Wrapping(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// Classifier evaluates rules in order. Context cancellation always wins and is
// Ignored; an error no rule claims is Permanent.
func Classifier(rules ...Rule) ErrorClassifier {
	return func(err error) ErrorClassification {
		if err == nil {
			return Ignored
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Ignored
		}
		for _, rule := range rules {
			if class, ok := rule(err); ok {
				return class
			}
		}
		return Permanent
	}
}

// WrapTemporary marks err as domain.ErrTemporary when classify would retry it
// or an open breaker rejected the call.
func WrapTemporary(operation string, err error, classify ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsCircuitOpen(err) || (classify != nil && classify(err).Retryable) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
