package api

import (
	"errors"
	"fmt"
)

// ErrUnauthorized signals a missing or expired token after the one-shot
// refresh has been attempted. The UI reacts by forcing re-authentication.
var ErrUnauthorized = errors.New("unauthorized: session expired, run `convo login`")

// NetworkError wraps a transport failure (no HTTP response at all).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response from the backend that is not an auth
// or quota condition. Message has already been passed through the
// translation table.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (status %d)", e.Code)
	}
	return e.Message
}

// QuotaError reports an exhausted daily or monthly message allowance.
type QuotaError struct {
	Scope   string // "daily" or "monthly"
	Current int
	Limit   int
}

func (e *QuotaError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("message limit reached: %d/%d (%s) limit", e.Current, e.Limit, e.Scope)
	}
	return fmt.Sprintf("message limit reached (%s)", e.Scope)
}

// knownMessages maps backend error message strings to the user-facing text
// shown in the UI. Unknown messages pass through verbatim.
var knownMessages = map[string]string{
	"RATE_LIMIT_EXCEEDED":     "You are sending messages too quickly. Please wait a moment.",
	"DAILY_LIMIT_EXCEEDED":    "You have used up today's message allowance.",
	"MONTHLY_LIMIT_EXCEEDED":  "You have used up this month's message allowance.",
	"SESSION_NOT_FOUND":       "This chat no longer exists on the server.",
	"INVALID_SESSION_NAME":    "That chat name is not allowed.",
	"MESSAGE_TOO_LONG":        "Your message is too long for the assistant.",
	"MODEL_UNAVAILABLE":       "The assistant is temporarily unavailable. Please try again.",
	"INTERNAL_SERVER_ERROR":   "Something went wrong on our side. Please try again.",
	"SERVICE_UNAVAILABLE":     "The service is temporarily unavailable.",
	"DOCUMENT_LIMIT_EXCEEDED": "You have reached your document upload limit.",
}

// errorBody is the common error envelope the backend emits. Older
// deployments return the flat shape, newer ones nest it under "error".
type errorBody struct {
	Message string       `json:"message"`
	Error   *errorDetail `json:"error"`
	Details *quotaDetail `json:"details"`
}

type errorDetail struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details *quotaDetail `json:"details"`
}

type quotaDetail struct {
	Scope   string `json:"scope"`
	Current int    `json:"current"`
	Limit   int    `json:"limit"`
}

// translate maps a backend error payload to user-facing text, appending the
// "X/Y (daily|monthly) limit" suffix when quota details are present.
func translate(body errorBody) (msg string, quota *quotaDetail) {
	raw := body.Message
	quota = body.Details
	if body.Error != nil {
		if body.Error.Message != "" {
			raw = body.Error.Message
		} else if body.Error.Code != "" {
			raw = body.Error.Code
		}
		if body.Error.Details != nil {
			quota = body.Error.Details
		}
	}

	msg = raw
	if translated, ok := knownMessages[raw]; ok {
		msg = translated
	}

	if quota != nil && quota.Limit > 0 {
		scope := quota.Scope
		if scope == "" {
			scope = "daily"
		}
		msg = fmt.Sprintf("%s %d/%d (%s) limit", msg, quota.Current, quota.Limit, scope)
	}
	return msg, quota
}
