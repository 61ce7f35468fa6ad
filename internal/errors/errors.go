// Package errors provides standardized error codes for the relay.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (validation, registry, pairing, delivery, server)
//   - error: The specific error type within that domain
//
// These codes are stable and are sent to clients inside error events so
// TV, mobile and emulator apps can branch on them. Human-readable messages
// are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that clients can rely on for error handling.
const (
	// Validation domain - malformed or incomplete inbound events
	CodeValidationMissingField   = "validation.missing_field"   // Required payload field missing
	CodeValidationInvalidKind    = "validation.invalid_kind"    // Registration kind not tv/mobile/emulator
	CodeValidationInvalidMessage = "validation.invalid_message" // Frame or payload is not valid JSON

	// Registry domain - device registration lookups
	CodeRegistryNotFound = "registry.not_found" // Logical id is not registered

	// Pairing domain - session state machine
	CodePairingSessionNotFound = "pairing.session_not_found" // Unknown, expired or terminal session
	CodePairingAlreadyUsed     = "pairing.already_used"      // Session was already confirmed

	// Delivery domain - best-effort sends to other transports
	CodeDeliveryFailed         = "delivery.failed"           // Target resolved but send failed
	CodeDeliveryTargetNotFound = "delivery.target_not_found" // Target id is not registered

	// Server domain - transport and dispatch errors
	CodeServerUnknownEvent  = "server.unknown_event"  // Event name has no handler
	CodeServerUpgradeFailed = "server.upgrade_failed" // WebSocket upgrade failed

	// Input domain - per-connection flood protection
	CodeInputRateLimited = "input.rate_limited" // Too many events per second

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "pairing.already_used")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client error events.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// MissingField creates a "validation.missing_field" error.
// The message is the exact text clients display, so callers pass it verbatim.
func MissingField(message string) *CodedError {
	return New(CodeValidationMissingField, message)
}

// InvalidKind creates a "validation.invalid_kind" error.
func InvalidKind() *CodedError {
	return New(CodeValidationInvalidKind, "Invalid registration type. Use 'tv', 'mobile' or 'emulator'")
}

// InvalidMessage creates a "validation.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeValidationInvalidMessage, reason)
}

// TVNotFound creates a "registry.not_found" error for pairing against an
// unregistered TV.
func TVNotFound(cause error) *CodedError {
	return Wrap(CodeRegistryNotFound, "TV not found or not registered", cause)
}

// SessionNotFound creates a "pairing.session_not_found" error.
// Expired and terminal sessions are reported the same way as unknown ones.
func SessionNotFound(cause error) *CodedError {
	return Wrap(CodePairingSessionNotFound, "Pairing session not found or expired", cause)
}

// AlreadyUsed creates a "pairing.already_used" error.
// Returned for every confirm after the first successful one.
func AlreadyUsed(cause error) *CodedError {
	return Wrap(CodePairingAlreadyUsed, "Pairing session already used", cause)
}

// TargetNotFound creates a "delivery.target_not_found" error.
func TargetNotFound(targetID string) *CodedError {
	return New(CodeDeliveryTargetNotFound, fmt.Sprintf("Target %s not found or not connected", targetID))
}

// DeliveryFailed creates a "delivery.failed" error.
// The target was resolved but its transport could not accept the message.
func DeliveryFailed(targetID string) *CodedError {
	return New(CodeDeliveryFailed, fmt.Sprintf("Target %s is not available", targetID))
}

// UnknownEvent creates a "server.unknown_event" error.
func UnknownEvent(event string) *CodedError {
	return New(CodeServerUnknownEvent, fmt.Sprintf("unknown event: %s", event))
}

// RateLimited creates an "input.rate_limited" error.
func RateLimited() *CodedError {
	return New(CodeInputRateLimited, "too many events, slow down")
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
