package ocrhttp

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

const recognizeOperation = "recognition.recognize"

// HTTPStatusError is a non-2xx answer from the engine.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("recognition engine answered %s", e.Status)
	}
	return fmt.Sprintf("recognition engine answered %s: %s", e.Status, e.Body)
}

// statusClasses covers the answers worth another attempt. 429 means the
// engine is shedding load, not failing, so it leaves the breaker alone.
// Other 5xx answers are Permanent; other 4xx are about this one image and
// are Ignored.
var statusClasses = map[int]resilience.ErrorClassification{
	http.StatusRequestTimeout:      resilience.Transient,
	http.StatusTooManyRequests:     resilience.Throttled,
	http.StatusInternalServerError: resilience.Transient,
	http.StatusBadGateway:          resilience.Transient,
	http.StatusServiceUnavailable:  resilience.Transient,
	http.StatusGatewayTimeout:      resilience.Transient,
}

func statusRule(err error) (resilience.ErrorClassification, bool) {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return resilience.ErrorClassification{}, false
	}
	if class, ok := statusClasses[statusErr.StatusCode]; ok {
		return class, true
	}
	if statusErr.StatusCode >= http.StatusInternalServerError {
		return resilience.Permanent, true
	}
	return resilience.Ignored, true
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

var classifyRecognitionError = resilience.Classifier(
	resilience.When(resilience.IsCircuitOpen, resilience.Permanent),
	statusRule,
	resilience.When(isNetworkError, resilience.Transient),
)

// unsupportedImage reports engine answers rejecting the payload itself.
func unsupportedImage(err error) bool {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusUnsupportedMediaType ||
		statusErr.StatusCode == http.StatusUnprocessableEntity
}

// recognitionError maps a failed call onto the domain kinds: rejected images
// are ErrUnsupportedFormat, everything else ErrRecognitionFailed, temporary
// when another attempt could succeed.
func recognitionError(err error) error {
	if unsupportedImage(err) {
		return domain.WrapError(domain.ErrUnsupportedFormat, "recognize", err)
	}
	return domain.WrapError(domain.ErrRecognitionFailed, "recognize",
		resilience.WrapTemporary("recognize", err, classifyRecognitionError))
}
