// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrUnparseableSymbol = errors.New("unparseable trading symbol")
	ErrFetchFailed       = errors.New("fetch failed")
	ErrNoChainData       = errors.New("no option chain data")
	ErrBackendRejected   = errors.New("backend rejected request")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrOrderRejected     = errors.New("order rejected")
	ErrTradeNotFound     = errors.New("trade not found")
	ErrTradeClosed       = errors.New("trade already closed")
	ErrUnknownUnderlying = errors.New("unknown underlying")
	ErrMixedUnderlying   = errors.New("mixed underlying basket")
	ErrRateLimited       = errors.New("rate limited")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrTimeout           = errors.New("operation timed out")
	ErrDatabaseError     = errors.New("database error")
	ErrInputValidation   = errors.New("input validation failed")
	ErrNotAuthenticated  = errors.New("not authenticated")
)

// ParseError reports a trading symbol that matched no known underlying pattern.
type ParseError struct {
	Symbol string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s]: %s", e.Symbol, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrUnparseableSymbol
}

// NewParseError creates a new ParseError.
func NewParseError(symbol, reason string) *ParseError {
	return &ParseError{
		Symbol: symbol,
		Reason: reason,
	}
}

// FetchError represents a failed option-chain fetch for one underlying.
type FetchError struct {
	Underlying string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error [%s]: %v", e.Underlying, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}

// NewFetchError creates a new FetchError.
func NewFetchError(underlying string, err error) *FetchError {
	return &FetchError{
		Underlying: underlying,
		Err:        err,
	}
}

// ComputeError wraps an unexpected failure inside payoff computation.
type ComputeError struct {
	Stage string
	Err   error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute error [%s]: %v", e.Stage, e.Err)
}

func (e *ComputeError) Unwrap() error {
	return e.Err
}

// NewComputeError creates a new ComputeError.
func NewComputeError(stage string, err error) *ComputeError {
	return &ComputeError{
		Stage: stage,
		Err:   err,
	}
}

// BackendError represents an error from the trading backend API.
type BackendError struct {
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend error [%s %d]: %s: %v", e.Endpoint, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("backend error [%s %d]: %s", e.Endpoint, e.Status, e.Message)
}

func (e *BackendError) Unwrap() error {
	if e.Err == nil {
		return ErrBackendRejected
	}
	return e.Err
}

// NewBackendError creates a new BackendError.
func NewBackendError(endpoint string, status int, message string, err error) *BackendError {
	return &BackendError{
		Endpoint: endpoint,
		Status:   status,
		Message:  message,
		Err:      err,
	}
}

// OrderError represents an error related to order operations.
type OrderError struct {
	OrderID string
	Symbol  string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.OrderID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.OrderID, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, symbol, action, reason string, err error) *OrderError {
	return &OrderError{
		OrderID: orderID,
		Symbol:  symbol,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// BrokerError represents an error from the broker used by the paper/live backend.
type BrokerError struct {
	Code    string
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("broker error [%s]: %s", e.Code, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(code, message string, err error) *BrokerError {
	return &BrokerError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
