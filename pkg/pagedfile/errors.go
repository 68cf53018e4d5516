package pagedfile

import "errors"

// Sentinel errors returned by pagedfile operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, pagedfile.ErrClosed) {
//	    // reopen before retrying
//	}
var (
	// ErrClosed indicates the [File] has already been closed.
	//
	// This is a programming error.
	ErrClosed = errors.New("pagedfile: closed")

	// ErrBusy indicates another handle already owns the backing file.
	//
	// Each paged file has exactly one owner; a second [Open] of the same
	// path fails until the first File is closed.
	//
	// Recovery: close the other File, or retry after a short delay.
	ErrBusy = errors.New("pagedfile: busy")

	// ErrInvalidInput indicates invalid arguments were provided.
	//
	// Common causes: empty path, non-positive page size or page budget,
	// negative offsets or lengths.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("pagedfile: invalid input")
)
