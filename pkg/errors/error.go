// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid parameters, orders, bars, risk inputs
//   - Data/Resource errors (200-299): Missing data, empty ranges, query failures
//   - Calendar/Config errors (300-399): Absent or stale calendar and risk config
//   - Strategy errors (400-499): Rule registration, version, and runtime errors
//   - Trading errors (500-599): Order state and bracket management errors
//   - Backtest errors (600-699): Backtest harness errors
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidRiskInput, "stop equals entry")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeDataNotFound, "no bars for symbol %s", symbol)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeQueryFailed, "failed to execute query", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeEmptyRange) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsInvalidRiskInput reports whether err is a degenerate risk-sizing input
// error (stop price equal to entry price).
func IsInvalidRiskInput(err error) bool {
	return HasCode(err, ErrCodeInvalidRiskInput)
}

// IsEmptyRange reports whether err is an empty-range query error from a
// bar-series aggregate.
func IsEmptyRange(err error) bool {
	return HasCode(err, ErrCodeEmptyRange)
}

// IsOrderState reports whether err is an order-state error (attempt to act
// on an order that is not in an actionable state).
func IsOrderState(err error) bool {
	return HasCode(err, ErrCodeOrderState)
}

// IsStaleConfig reports whether err is a missing/stale configuration error.
func IsStaleConfig(err error) bool {
	return HasCode(err, ErrCodeStaleConfig)
}

// StrategyRuleError represents an uncaught fault raised inside strategy rule
// evaluation. It carries the tradestrategy the rule was evaluating so the
// failure can be attributed when multiple strategies run concurrently.
type StrategyRuleError struct {
	TradestrategyID string
	RuleName        string
	Cause           error
}

// NewStrategyRuleError creates a new StrategyRuleError.
func NewStrategyRuleError(tradestrategyID, ruleName string, cause error) *StrategyRuleError {
	return &StrategyRuleError{
		TradestrategyID: tradestrategyID,
		RuleName:        ruleName,
		Cause:           cause,
	}
}

// Error implements the error interface.
func (e *StrategyRuleError) Error() string {
	return fmt.Sprintf("strategy rule %q failed for tradestrategy %s: %v", e.RuleName, e.TradestrategyID, e.Cause)
}

// Unwrap returns the underlying rule failure.
func (e *StrategyRuleError) Unwrap() error {
	return e.Cause
}

// IsStrategyRuleError checks if an error is a StrategyRuleError.
// It uses errors.As to check the error chain.
func IsStrategyRuleError(err error) bool {
	var ruleErr *StrategyRuleError

	return errors.As(err, &ruleErr)
}
