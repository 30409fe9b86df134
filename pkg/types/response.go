package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error body. Reason narrows Code for domain rules
// the client can act on, such as COUPON_EXPIRED.
type APIError struct {
	Code      string `json:"code"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
