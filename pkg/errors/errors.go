// Package errors is the typed error taxonomy shared by services and the HTTP
// layer. Each Code maps to a status, a public message and retry semantics.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeTooLarge      Code = "PAYLOAD_TOO_LARGE"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeOutOfStock    Code = "OUT_OF_STOCK"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeSignature     Code = "SIGNATURE_INVALID"
	CodeGateway       Code = "PAYMENT_GATEWAY_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Reason narrows a code to a domain rule. It travels as details["reason"].
type Reason string

const (
	ReasonInvalidCoupon         Reason = "INVALID_COUPON"
	ReasonCouponExpired         Reason = "COUPON_EXPIRED"
	ReasonCouponAlreadyUsed     Reason = "COUPON_ALREADY_USED"
	ReasonOutOfStock            Reason = "OUT_OF_STOCK"
	ReasonInvalidRefundQuantity Reason = "INVALID_REFUND_QUANTITY"
	ReasonZeroRefund            Reason = "ZERO_REFUND"
)

const reasonKey = "reason"

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type flag uint8

const (
	retryable flag = 1 << iota
	withDetails
)

func describe(status int, public string, flags flag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&withDetails != 0,
	}
}

var taxonomy = map[Code]Metadata{
	CodeValidation:    describe(http.StatusBadRequest, "validation failed", withDetails),
	CodeTooLarge:      describe(http.StatusRequestEntityTooLarge, "request body too large", withDetails),
	CodeUnauthorized:  describe(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:     describe(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      describe(http.StatusNotFound, "resource not found", withDetails),
	CodeConflict:      describe(http.StatusConflict, "conflict detected", withDetails),
	CodeStateConflict: describe(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeOutOfStock:    describe(http.StatusConflict, "insufficient stock", withDetails),
	CodeIdempotency:   describe(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimit:     describe(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeSignature:     describe(http.StatusBadRequest, "signature verification failed", 0),
	CodeGateway:       describe(http.StatusBadGateway, "payment processor unavailable", retryable),
	CodeInternal:      describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    describe(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := taxonomy[code]; ok {
		return meta
	}
	return taxonomy[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func NewWithReason(code Code, reason Reason, message string) *Error {
	return New(code, message).WithDetail(reasonKey, string(reason))
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails replaces the details payload.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// WithDetail sets one key on a map payload, creating it when needed. A
// non-map payload is replaced.
func (e *Error) WithDetail(key string, value any) *Error {
	if e == nil {
		return nil
	}
	m, ok := e.details.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	m[key] = value
	e.details = m
	return e
}

func (e *Error) Reason() Reason {
	if e == nil {
		return ""
	}
	m, _ := e.details.(map[string]any)
	r, _ := m[reasonKey].(string)
	return Reason(r)
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code so errors.Is(err, New(CodeNotFound, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	var other *Error
	if e == nil || !stdErrors.As(target, &other) || other == nil {
		return false
	}
	return e.code == other.code
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func IsCode(err error, code Code) bool {
	return As(err).codeIs(code)
}

func HasReason(err error, reason Reason) bool {
	typed := As(err)
	return typed != nil && typed.Reason() == reason
}

func (e *Error) codeIs(code Code) bool {
	return e != nil && e.code == code
}
