package storage

import (
	"errors"
	"sync/atomic"
)

// InjectedError marks an error as intentionally injected by [Faulty].
//
// It wraps the underlying error so errors.Is/As continue to work.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message.
func (e *InjectedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by
// [Faulty]. Returns false if err is nil.
func IsInjected(err error) bool {
	if err == nil {
		return false
	}

	var injected *InjectedError

	return errors.As(err, &injected)
}

// Faulty wraps another [Handle] and injects failures into ReadAt and WriteAt.
//
// Tests use it to exercise the error paths of the paged-file layer without a
// misbehaving filesystem: arm it with [Faulty.FailReads] or
// [Faulty.FailWrites] and the next N corresponding calls fail with an
// [InjectedError] before touching the inner handle.
//
// The counters are atomics so a test goroutine can arm faults while the
// session owner goroutine performs I/O.
type Faulty struct {
	inner Handle

	readErr  error
	writeErr error

	failReads  atomic.Int64
	failWrites atomic.Int64
}

// NewFaulty wraps inner. Until armed, all calls pass through unchanged.
func NewFaulty(inner Handle) *Faulty {
	return &Faulty{inner: inner}
}

// FailReads arms the next n ReadAt calls to fail with err.
func (f *Faulty) FailReads(n int, err error) {
	f.readErr = err
	f.failReads.Store(int64(n))
}

// FailWrites arms the next n WriteAt calls to fail with err.
func (f *Faulty) FailWrites(n int, err error) {
	f.writeErr = err
	f.failWrites.Store(int64(n))
}

// ReadAt fails if armed, otherwise passes through to the inner handle.
func (f *Faulty) ReadAt(p []byte, off int64) (int, error) {
	if f.failReads.Add(-1) >= 0 {
		return 0, &InjectedError{Err: f.readErr}
	}

	return f.inner.ReadAt(p, off)
}

// WriteAt fails if armed, otherwise passes through to the inner handle.
func (f *Faulty) WriteAt(p []byte, off int64) (int, error) {
	if f.failWrites.Add(-1) >= 0 {
		return 0, &InjectedError{Err: f.writeErr}
	}

	return f.inner.WriteAt(p, off)
}

// Size passes through to the inner handle.
func (f *Faulty) Size() (int64, error) {
	return f.inner.Size()
}

// Sync passes through to the inner handle.
func (f *Faulty) Sync() error {
	return f.inner.Sync()
}

// Close passes through to the inner handle.
func (f *Faulty) Close() error {
	return f.inner.Close()
}

// Compile-time interface check.
var _ Handle = (*Faulty)(nil)
