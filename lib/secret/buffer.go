// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/subtle"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer holds sensitive bytes in locked, non-dumpable memory outside
// the Go heap. A Buffer must not be copied after creation.
type Buffer struct {
	mu     sync.Mutex
	region []byte
	closed bool
}

// allocate maps and protects a region of the given size.
func allocate(size int) ([]byte, error) {
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap %d bytes: %w", size, err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}
	return region, nil
}

// NewFromBytes copies source into a new protected buffer and zeroes
// source in place.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("secret: cannot create buffer from empty source")
	}
	region, err := allocate(len(source))
	if err != nil {
		return nil, err
	}
	copy(region, source)
	Zero(source)
	return &Buffer{region: region}, nil
}

// NewFromString copies value into a new protected buffer. The string
// itself cannot be zeroed; use this only where the value necessarily
// arrived as a string.
func NewFromString(value string) (*Buffer, error) {
	if value == "" {
		return nil, fmt.Errorf("secret: cannot create buffer from empty string")
	}
	region, err := allocate(len(value))
	if err != nil {
		return nil, err
	}
	copy(region, value)
	return &Buffer{region: region}, nil
}

// Bytes returns the secret. The slice aliases the protected region and
// must not be retained past Close. Panics if the buffer is closed.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return b.region
}

// String returns a heap copy of the secret, for API boundaries that
// require a string (JSON request bodies, HTTP headers). Panics if the
// buffer is closed.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return string(b.region)
}

// Len returns the size of the secret, or zero after Close.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.region)
}

// Equal reports whether the buffer holds exactly value, in constant
// time with respect to the contents.
func (b *Buffer) Equal(value []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return subtle.ConstantTimeCompare(b.region, value) == 1
}

// Close zeroes, unlocks, and unmaps the region. Close is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	Zero(b.region)
	var firstError error
	if err := unix.Munlock(b.region); err != nil {
		firstError = fmt.Errorf("secret: munlock: %w", err)
	}
	if err := unix.Munmap(b.region); err != nil && firstError == nil {
		firstError = fmt.Errorf("secret: munmap: %w", err)
	}
	b.region = nil
	return firstError
}

// Zero overwrites data with zero bytes. Use it on heap copies of
// secrets (marshaled state files, decoded responses) once they have
// been consumed.
func Zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}
