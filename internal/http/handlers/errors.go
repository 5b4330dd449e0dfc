// Package handlers defines the HTTP-layer error codes used across the API.
//
// Codes are lowercase snake_case. Generic codes mirror HTTP status semantics;
// domain-specific codes convey business failures that status alone cannot.
// Handlers pick the most specific matching code and pass it to fail().
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeNotLinked       = "not_linked"
	ErrCodeNoPrompt        = "no_prompt"
	ErrCodeSendFailed      = "send_failed"
	ErrCodeInvalidSlot     = "invalid_slot"
	ErrCodeInvalidSettings = "invalid_settings"
	ErrCodeSweepFailed     = "sweep_failed"
	ErrCodeCodeIssueFailed = "code_issue_failed"
)
