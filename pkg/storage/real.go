package storage

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Real implements [Handle] using a real file descriptor.
//
// Open takes an exclusive advisory flock(2) on the data file itself, so two
// processes (or two handles in one process) cannot hold the same file at
// once. The lock lives for the lifetime of the descriptor and is released by
// [Real.Close].
type Real struct {
	f *os.File
}

// Open opens (creating if necessary) the file at path for positioned I/O.
//
// Returns [ErrBusy] if another handle already holds the file.
func Open(path string) (*Real, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	err = flockRetryEINTR(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = f.Close()

		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return nil, fmt.Errorf("%w: %s", ErrBusy, path)
		}

		return nil, fmt.Errorf("storage: flock %s: %w", path, err)
	}

	return &Real{f: f}, nil
}

// ReadAt is a passthrough to [os.File.ReadAt].
func (r *Real) ReadAt(p []byte, off int64) (int, error) {
	return r.f.ReadAt(p, off)
}

// WriteAt is a passthrough to [os.File.WriteAt].
func (r *Real) WriteAt(p []byte, off int64) (int, error) {
	return r.f.WriteAt(p, off)
}

// Size returns the file's current length via [os.File.Stat].
func (r *Real) Size() (int64, error) {
	info, err := r.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("storage: stat: %w", err)
	}

	return info.Size(), nil
}

// Sync is a passthrough to [os.File.Sync].
func (r *Real) Sync() error {
	return r.f.Sync()
}

// Close releases the flock and closes the descriptor.
//
// Closing the descriptor releases the flock on its own; the explicit unlock
// just makes failures observable. If both fail, the errors are joined.
func (r *Real) Close() error {
	unlockErr := flockRetryEINTR(int(r.f.Fd()), unix.LOCK_UN)
	closeErr := r.f.Close()

	if unlockErr != nil {
		unlockErr = fmt.Errorf("storage: unlock: %w", unlockErr)
	}

	return errors.Join(unlockErr, closeErr)
}

// flockRetryEINTR wraps flock, retrying on EINTR.
//
// Signals (SIGWINCH, SIGCHLD, timers) can interrupt any blocking syscall; the
// call didn't fail, it just needs to be retried. The retry count is capped to
// avoid spinning under pathological signal storms.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}

// Compile-time interface check.
var _ Handle = (*Real)(nil)
