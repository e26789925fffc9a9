// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
	"net/http"
)

// MatrixError is a non-2xx response from the homeserver. Callers can
// use errors.As to extract it:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) && matrixErr.StatusCode == http.StatusForbidden { ... }
//
// Responses whose body is not a Matrix error object (a reverse proxy's
// HTML error page, for example) have an empty Code and the raw body as
// Message.
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN").
	Code string `json:"errcode"`
	// Message is the human-readable description from the server.
	Message string `json:"error"`
	// RetryAfterMS is set on M_LIMIT_EXCEEDED responses.
	RetryAfterMS int64 `json:"retry_after_ms,omitempty"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("matrix: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Unauthorized reports whether the homeserver rejected the request's
// credentials (HTTP 401 or 403).
func (e *MatrixError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Matrix error codes the relay distinguishes.
const (
	ErrCodeForbidden       = "M_FORBIDDEN"
	ErrCodeUnknownToken    = "M_UNKNOWN_TOKEN"
	ErrCodeMissingToken    = "M_MISSING_TOKEN"
	ErrCodeNotFound        = "M_NOT_FOUND"
	ErrCodeLimitExceeded   = "M_LIMIT_EXCEEDED"
	ErrCodeUserDeactivated = "M_USER_DEACTIVATED"
	ErrCodeUnknown         = "M_UNKNOWN"
)

// IsMatrixError checks whether err is a *MatrixError with the given
// error code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}
