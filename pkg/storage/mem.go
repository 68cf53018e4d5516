package storage

import (
	"github.com/dsnet/golib/memfile"
)

// Mem implements [Handle] entirely in memory.
//
// It exists for tests: a paged-file session can run against a Mem handle with
// no filesystem involved, and the raw backing bytes stay inspectable through
// [Mem.Bytes]. There is no locking; each Mem is private to its creator.
type Mem struct {
	f *memfile.File
}

// NewMem returns an empty in-memory handle.
func NewMem() *Mem {
	return &Mem{f: memfile.New(make([]byte, 0))}
}

// NewMemBytes returns an in-memory handle seeded with a copy of b.
func NewMemBytes(b []byte) *Mem {
	seed := make([]byte, len(b))
	copy(seed, b)

	return &Mem{f: memfile.New(seed)}
}

// ReadAt is a passthrough to [memfile.File.ReadAt].
// Reads past the end return [io.EOF] with a partial count, like [os.File].
func (m *Mem) ReadAt(p []byte, off int64) (int, error) {
	return m.f.ReadAt(p, off)
}

// WriteAt is a passthrough to [memfile.File.WriteAt].
// Writes past the end grow the buffer, like [os.File].
func (m *Mem) WriteAt(p []byte, off int64) (int, error) {
	return m.f.WriteAt(p, off)
}

// Size returns the current length of the backing buffer.
func (m *Mem) Size() (int64, error) {
	return int64(len(m.f.Bytes())), nil
}

// Sync is a no-op; there is nothing more durable to hand the bytes to.
func (m *Mem) Sync() error {
	return nil
}

// Close is a no-op. The backing buffer stays readable through [Mem.Bytes] so
// tests can assert on the final raw contents after a session closes.
func (m *Mem) Close() error {
	return nil
}

// Bytes returns the live backing buffer. The slice aliases internal state;
// callers must not hold it across writes.
func (m *Mem) Bytes() []byte {
	return m.f.Bytes()
}

// Compile-time interface check.
var _ Handle = (*Mem)(nil)
