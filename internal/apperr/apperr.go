// Package apperr declares the error taxonomy of the orchestration core
// (spec.md §7): a closed set of kinds, not exception classes, so the
// executor and HTTP layer branch on a discriminant rather than a type
// hierarchy (spec.md §9, "Exceptions for control flow").
package apperr

import "fmt"

// Kind is one of the taxonomy's eleven error classes.
type Kind string

const (
	KindDuplicateEvent  Kind = "duplicate_event"
	KindValidation      Kind = "validation"
	KindAuth            Kind = "auth"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindTimeout         Kind = "timeout"
	KindCircuitOpen     Kind = "circuit_open"
	KindTransport       Kind = "transport"
	KindIntegration     Kind = "integration"
	KindInternal        Kind = "internal"
)

// Error is the concrete type every component returns for a classified
// failure. Wrap with fmt.Errorf("...: %w", err) freely; Unwrap preserves
// the chain for errors.Is/As, and KindOf reads the Kind through any wrapping.
type Error struct {
	Kind       Kind
	Message    string
	Code       string // collaborator-defined code, e.g. "TOKEN_EXPIRED"
	StatusCode int    // upstream HTTP status, when Kind is Integration/Transport
	RetryAfter int    // seconds; only meaningful for KindRateLimited
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the executor's retry loop should treat this
// class of failure as transient (§4.A "retryable failures", §7).
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindTransport, KindCircuitOpen:
		return true
	default:
		return false
	}
}

// New constructs a classified error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a classified error that preserves cause via Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// RateLimited builds a KindRateLimited error carrying seconds-until-reset.
func RateLimited(retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded", RetryAfter: retryAfter}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// defaulting to KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// as is a tiny local errors.As to avoid importing errors just for this.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// RetryableErr reports whether err (possibly wrapped) is classified as
// retryable. Matches spec.md §9's RetryableError interface note.
func RetryableErr(err error) bool {
	var e *Error
	if as(err, &e) {
		return e.Retryable()
	}
	return false
}

// CodeOf extracts the collaborator-defined Code from err, if any.
func CodeOf(err error) string {
	var e *Error
	if as(err, &e) {
		return e.Code
	}
	return ""
}

// IsTokenExpired reports whether err carries the "TOKEN_EXPIRED" code used
// by the CRM token-refresh special case (spec.md §4.F).
func IsTokenExpired(err error) bool {
	return CodeOf(err) == "TOKEN_EXPIRED"
}

// TokenExpired builds the classified error a CRM collaborator returns to
// signal the executor's token-expiry special case (spec.md §4.F): the
// executor retries the same attempt once without counting it against
// max_attempts. The executor does not refresh the token itself.
func TokenExpired(message string) *Error {
	return &Error{Kind: KindIntegration, Message: message, Code: "TOKEN_EXPIRED"}
}
