// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// MaxResponseSize bounds every response body read: 16 MB. The relay
// only reads small JSON API responses (login, join, send, versions).
const MaxResponseSize int64 = 16 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a response body (bounded) and JSON-decodes it
// into target.
func DecodeResponse(body io.Reader, target any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// IsTransient reports whether err is a transport failure that may
// succeed on retry: timeouts, refused or reset connections, and
// truncated responses. Context cancellation is not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var netError net.Error
	if errors.As(err, &netError) && netError.Timeout() {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return true
	}
	var opError *net.OpError
	return errors.As(err, &opError)
}
