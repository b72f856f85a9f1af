package forgeai

import "fmt"

// ErrorKind is the closed error taxonomy every adapter collapses its
// failures into. It is exhaustive — adapters and the router never
// return a bare error that isn't a *ForgeError.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindRateLimited    ErrorKind = "rate_limited"
	KindProvider       ErrorKind = "provider"
	KindTransport      ErrorKind = "transport"
	KindInternal       ErrorKind = "internal"
)

// ForgeError is the error type returned by every Adapter, the router, and
// the tool loop. Message is empty for Authentication and RateLimited,
// which carry no further detail per the closed taxonomy.
type ForgeError struct {
	Kind    ErrorKind
	Message string
}

func (e *ForgeError) Error() string {
	switch e.Kind {
	case KindAuthentication:
		return "authentication error"
	case KindRateLimited:
		return "rate limited"
	case KindValidation:
		return fmt.Sprintf("validation error: %s", e.Message)
	case KindProvider:
		return fmt.Sprintf("provider error: %s", e.Message)
	case KindTransport:
		return fmt.Sprintf("transport error: %s", e.Message)
	case KindInternal:
		return fmt.Sprintf("internal error: %s", e.Message)
	default:
		return fmt.Sprintf("forgeai error (%s): %s", e.Kind, e.Message)
	}
}

// Is lets errors.Is(err, &ForgeError{Kind: KindAuthentication}) match any
// ForgeError of the same Kind, regardless of Message.
func (e *ForgeError) Is(target error) bool {
	t, ok := target.(*ForgeError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func NewValidationError(format string, args ...interface{}) *ForgeError {
	return &ForgeError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewAuthenticationError() *ForgeError {
	return &ForgeError{Kind: KindAuthentication}
}

func NewRateLimitedError() *ForgeError {
	return &ForgeError{Kind: KindRateLimited}
}

func NewProviderError(format string, args ...interface{}) *ForgeError {
	return &ForgeError{Kind: KindProvider, Message: fmt.Sprintf(format, args...)}
}

func NewTransportError(format string, args ...interface{}) *ForgeError {
	return &ForgeError{Kind: KindTransport, Message: fmt.Sprintf(format, args...)}
}

func NewInternalError(format string, args ...interface{}) *ForgeError {
	return &ForgeError{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Retryable reports whether the router should advance to the next
// adapter on this error: RateLimited, Transport, and Provider are
// retryable; Validation, Authentication, and Internal are terminal.
func (e *ForgeError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTransport, KindProvider:
		return true
	default:
		return false
	}
}
