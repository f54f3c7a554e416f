// Package apperr defines the error taxonomy shared by the query cache, the
// mutation coordinator and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that knows how it should be shown to a client.
type AppError interface {
	error
	HTTPCode() int
	ErrorCode() string
	Message() string
}

// ValidationError is raised before a mutation reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) HTTPCode() int     { return http.StatusBadRequest }
func (e *ValidationError) ErrorCode() string { return "VALIDATION_FAILED" }
func (e *ValidationError) Message() string {
	if e.Reason == "" {
		return "Please fill in all fields"
	}
	return e.Reason
}

// NotReadyError means a dependency has not finished initializing.
type NotReadyError struct {
	Dependency string
	Err        error
}

func NotReady(dependency string, err error) *NotReadyError {
	return &NotReadyError{Dependency: dependency, Err: err}
}

func (e *NotReadyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s not ready: %v", e.Dependency, e.Err)
	}
	return e.Dependency + " not ready"
}

func (e *NotReadyError) Unwrap() error     { return e.Err }
func (e *NotReadyError) HTTPCode() int     { return http.StatusServiceUnavailable }
func (e *NotReadyError) ErrorCode() string { return "NOT_READY" }
func (e *NotReadyError) Message() string {
	return "The marketplace is still starting up, please try again shortly"
}

// RemoteError wraps a failed call to the marketplace service.
type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func Remote(op string, status int, err error) *RemoteError {
	return &RemoteError{Op: op, Status: status, Err: err}
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s failed with status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error     { return e.Err }
func (e *RemoteError) HTTPCode() int     { return http.StatusBadGateway }
func (e *RemoteError) ErrorCode() string { return "REMOTE_FAILED" }
func (e *RemoteError) Message() string   { return "The marketplace service could not complete the request" }

type NotFoundError struct {
	Entity string
	ID     string
}

func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) HTTPCode() int     { return http.StatusNotFound }
func (e *NotFoundError) ErrorCode() string { return "NOT_FOUND" }
func (e *NotFoundError) Message() string   { return e.Error() }

type ForbiddenError struct {
	Reason string
}

func Forbidden(reason string) *ForbiddenError {
	return &ForbiddenError{Reason: reason}
}

func (e *ForbiddenError) Error() string     { return "forbidden: " + e.Reason }
func (e *ForbiddenError) HTTPCode() int     { return http.StatusForbidden }
func (e *ForbiddenError) ErrorCode() string { return "FORBIDDEN" }
func (e *ForbiddenError) Message() string   { return e.Reason }

type RateLimitedError struct{}

func (RateLimitedError) Error() string     { return "too many requests" }
func (RateLimitedError) HTTPCode() int     { return http.StatusTooManyRequests }
func (RateLimitedError) ErrorCode() string { return "RATE_LIMITED" }
func (RateLimitedError) Message() string   { return "Too many requests, slow down" }

// As extracts the first AppError in err's chain.
func As(err error) (AppError, bool) {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsNotReady(err error) bool {
	var target *NotReadyError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsRemote(err error) bool {
	var target *RemoteError
	return errors.As(err, &target)
}
