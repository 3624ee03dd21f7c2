package core

// # Error Codes Reference
//
// This file maps technical errors to user-facing messages with codes that
// can be quoted to support staff.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Missing global tolerance scope
//	         Action: An administrator must create the global tolerance row
//	CFG002 - Reset token not configured
//	         Action: Set METRICS_RESET_TOKEN or disable METRICS_RESET_REQUIRE_TOKEN
//
// # Authorization Errors (AUTH001-AUTH099)
//
//	AUTH001 - Reset token mismatch
//	AUTH002 - Debug token mismatch
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid matching request (missing amount/date, bad parameters)
//	VAL002 - Invalid log runtime override
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Connection refused       Patterns: "connection refused"
//	SRC002 - Connection reset         Patterns: "connection reset"
//	SRC003 - Query timed out          Patterns: "timeout", deadline exceeded
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Too many concurrent scans
//	REQ002 - Request cancelled
//
// # Default Error (ERR000)
//
// Sentinel errors are matched with errors.Is first; the pattern table is the
// fallback for driver errors that carry no sentinel. Patterns are matched
// case-insensitively with strings.Contains and the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/reconcile/internal/eventlog"
	"github.com/JonMunkholm/reconcile/internal/latency"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

var (
	msgMissingGlobal = UserMessage{
		Message: "Tolerance configuration has no global scope",
		Action:  "An administrator must create the global tolerance row",
		Code:    "CFG001",
	}
	msgResetNotConfigured = UserMessage{
		Message: "Metrics reset requires a token but none is configured",
		Action:  "Configure METRICS_RESET_TOKEN on the server",
		Code:    "CFG002",
	}
	msgResetMismatch = UserMessage{
		Message: "Reset token does not match",
		Action:  "Supply the configured reset token",
		Code:    "AUTH001",
	}
	msgDebugMismatch = UserMessage{
		Message: "Debug token does not match",
		Action:  "Supply the configured debug token",
		Code:    "AUTH002",
	}
	msgInvalidRequest = UserMessage{
		Message: "The matching request is invalid",
		Action:  "Check that amount and date are present and parameters are in range",
		Code:    "VAL001",
	}
	msgInvalidOverride = UserMessage{
		Message: "The log override is invalid",
		Action:  "Sample rates must be between 0 and 1",
		Code:    "VAL002",
	}
	msgTooManyScans = UserMessage{
		Message: "Too many matching requests in progress",
		Action:  "Please wait a moment and try again",
		Code:    "REQ001",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ002",
	}
	msgTimeout = UserMessage{
		Message: "Candidate lookup timed out",
		Action:  "Narrow the date window or try again later",
		Code:    "SRC003",
	}
)

// sentinelMessages are checked in order with errors.Is.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrMissingGlobalScope, msgMissingGlobal},
	{latency.ErrResetTokenNotConfigured, msgResetNotConfigured},
	{latency.ErrResetTokenMismatch, msgResetMismatch},
	{ErrDebugTokenMismatch, msgDebugMismatch},
	{eventlog.ErrInvalidOverride, msgInvalidOverride},
	{ErrTooManyScans, msgTooManyScans},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgTimeout},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the document store",
			Action:  "Please try again in a few moments",
			Code:    "SRC001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Document store connection was interrupted",
			Action:  "Please try again",
			Code:    "SRC002",
		},
	},
	{pattern: "timeout", msg: msgTimeout},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	if IsValidationError(err) {
		return msgInvalidRequest
	}
	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
