// Package storage provides the byte-addressable storage handles that back a
// paged file.
//
// The main types are:
//   - [Handle]: interface for positioned I/O on one opened file
//   - [Real]: production implementation backed by an [os.File]
//   - [Mem]: in-memory implementation for tests
//   - [Faulty]: testing wrapper that injects errors into I/O calls
//
// A [Handle] is deliberately small: positioned reads and writes, the current
// length, and close. Everything above it (paging, caching, write-back) lives
// in the pagedfile package, which treats the handle as a black box.
//
// Example usage:
//
//	h, err := storage.Open("data.bin")
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	buf := make([]byte, 4096)
//	n, err := h.ReadAt(buf, 0)
package storage

import (
	"errors"
	"io"
)

// ErrBusy is returned by [Open] when another process already holds the
// exclusive lock on the file.
//
// Recovery: close the other handle, or retry after a short delay.
var ErrBusy = errors.New("storage: file is locked by another process")

// Handle is one opened, byte-addressable file.
//
// ReadAt and WriteAt follow the [io.ReaderAt] and [io.WriterAt] contracts:
// ReadAt returns a non-nil error (typically [io.EOF]) whenever it reads fewer
// than len(p) bytes, and WriteAt returns a non-nil error whenever it writes
// fewer than len(p) bytes.
//
// Implementations are not required to be safe for concurrent use; a paged
// file session touches its handle from a single owner goroutine only.
type Handle interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the current length of the file in bytes.
	Size() (int64, error)

	// Sync commits written bytes to stable storage, where the
	// implementation has such a notion. [Mem] treats it as a no-op.
	Sync() error

	// Close releases the handle and any lock held on the file.
	// The handle is unusable afterward.
	Close() error
}
