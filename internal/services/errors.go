package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSecurity      = errors.New("security error")
	ErrValidation    = errors.New("validation error")
	ErrExternalTool  = errors.New("external tool error")
	ErrTimeout       = errors.New("timeout")
	ErrToolMissing   = errors.New("tool missing")
	ErrIO            = errors.New("io error")
	ErrConfiguration = errors.New("configuration error")
)

// serviceError carries the classification marker and the stage detail
// separately from the wrapped cause. The cause may embed filesystem paths or
// tool stderr, so only marker and detail feed user-facing text.
type serviceError struct {
	marker error
	detail string
	cause  error
}

func (e *serviceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.marker, e.detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.marker, e.detail)
}

func (e *serviceError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.marker, e.cause}
	}
	return []error{e.marker}
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrExternalTool
	}
	return &serviceError{
		marker: marker,
		detail: buildDetail(stage, operation, message),
		cause:  err,
	}
}

// Category maps an error to its machine-readable failure category.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSecurity):
		return "security"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrToolMissing):
		return "tool_missing"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrExternalTool):
		return "tool"
	default:
		return "unknown"
	}
}

// Fatal reports whether an error must abort the whole pipeline run rather
// than degrade the current stage.
func Fatal(err error) bool {
	return errors.Is(err, ErrSecurity)
}

// SafeMessage returns user-facing text for an error. Security errors always
// collapse to a generic message so rejected paths are never echoed back.
// Every other category keeps only the marker and stage detail; wrapped causes
// stay out because they may carry filesystem paths or tool output.
func SafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrSecurity) {
		return "Request rejected by security policy"
	}
	var svc *serviceError
	if errors.As(err, &svc) {
		return fmt.Sprintf("%s: %s", svc.marker, svc.detail)
	}
	switch Category(err) {
	case "validation":
		return "input failed validation"
	case "timeout":
		return "operation timed out"
	case "tool_missing":
		return "a required external tool is not installed"
	case "io":
		return "file operation failed"
	case "configuration":
		return "configuration error"
	case "tool":
		return "external tool failed"
	default:
		return "operation failed"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
