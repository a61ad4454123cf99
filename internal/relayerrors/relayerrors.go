// Package relayerrors provides error handling for the relay application.
// It defines error categories, error codes, and the user-visible texts sent
// to the offending connection as system notices.
package relayerrors

import "fmt"

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryIdentity represents identity claim and session errors
	CategoryIdentity ErrorCategory = "identity"
	// CategoryValidation represents input validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryRouting represents message routing errors
	CategoryRouting ErrorCategory = "routing"
	// CategoryInternal represents unexpected internal faults
	CategoryInternal ErrorCategory = "internal"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Identity errors
	ErrCodeNameInUse ErrorCode = "NAME_IN_USE"

	// Validation and routing errors
	ErrCodeNotIdentified    ErrorCode = "NOT_IDENTIFIED"
	ErrCodeMissingRecipient ErrorCode = "MISSING_RECIPIENT"
	ErrCodeEmptyText        ErrorCode = "EMPTY_TEXT"
	ErrCodeRecipientOffline ErrorCode = "RECIPIENT_OFFLINE"
	ErrCodeInvalidPayload   ErrorCode = "INVALID_PAYLOAD"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// RelayError represents an application error with category information.
// All relay errors are non-fatal to the connection: the offending client
// receives a system notice and the connection stays open.
type RelayError struct {
	Category ErrorCategory
	Code     ErrorCode
	Message  string // user-visible text, sent verbatim as a system notice
	Cause    error
}

// Error implements the error interface
func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *RelayError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the text shown to the offending connection.
func (e *RelayError) UserMessage() string {
	return e.Message
}

// New creates a RelayError with the given category, code, and user-visible text.
func New(category ErrorCategory, code ErrorCode, message string, cause error) *RelayError {
	return &RelayError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// Common error constructors

// ErrNameInUse is returned when a claim is rejected because a different
// session already owns the display name. No registry state changes.
func ErrNameInUse(name string) *RelayError {
	return New(CategoryIdentity, ErrCodeNameInUse,
		fmt.Sprintf("Username '%s' is already taken.", name), nil)
}

// ErrNotIdentified is returned when an anonymous connection tries to send.
func ErrNotIdentified() *RelayError {
	return New(CategoryValidation, ErrCodeNotIdentified, "Set a username first.", nil)
}

// ErrMissingRecipient is returned when a message names no recipient.
func ErrMissingRecipient() *RelayError {
	return New(CategoryValidation, ErrCodeMissingRecipient, "Please select a recipient.", nil)
}

// ErrEmptyText is returned when a message is empty after trimming whitespace.
func ErrEmptyText() *RelayError {
	return New(CategoryValidation, ErrCodeEmptyText, "Message cannot be empty.", nil)
}

// ErrRecipientOffline is returned when the recipient has no live connection.
func ErrRecipientOffline(name string) *RelayError {
	return New(CategoryRouting, ErrCodeRecipientOffline,
		fmt.Sprintf("User '%s' is offline or not found.", name), nil)
}

// ErrInvalidPayload is returned when an event payload cannot be decoded.
func ErrInvalidPayload(cause error) *RelayError {
	return New(CategoryValidation, ErrCodeInvalidPayload, "Invalid message data", cause)
}

// ErrInternal wraps an unexpected fault with the generic client-facing notice.
func ErrInternal(cause error) *RelayError {
	return New(CategoryInternal, ErrCodeInternal, "An error occurred. Please try again.", cause)
}
