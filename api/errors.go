// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-httpd.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the server.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotSupported     = errors.New("operation not supported")
	ErrNotExist         = errors.New("resource does not exist")
	ErrQueueFull        = errors.New("work queue is full")
	ErrPoolClosed       = errors.New("worker pool is closed")
	ErrReadBufferFull   = errors.New("read buffer is full")
	ErrWriteBufferFull  = errors.New("write buffer is full")
	ErrPeerClosed       = errors.New("peer closed connection")
	ErrNotOwner         = errors.New("connection is owned by another goroutine")
	ErrConnectionClosed = errors.New("connection is closed")
	ErrWouldBlock       = errors.New("operation would block")
)

// ErrorCode represents specific error conditions in the server.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeNotSupported
	ErrCodeNotFound
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeResourceExhausted:
		return "resource_exhausted"
	case ErrCodeNotSupported:
		return "not_supported"
	case ErrCodeNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is lets errors.Is match a structured error against the sentinel of its code.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case ErrCodeInvalidArgument:
		return target == ErrInvalidArgument
	case ErrCodeNotSupported:
		return target == ErrNotSupported
	case ErrCodeNotFound:
		return target == ErrNotExist
	}
	return false
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
