package pagedfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/calvinalkan/pagedfile/pkg/storage"
)

// ReadRequest is one entry of a [File.ReadBatch].
type ReadRequest struct {
	Offset int64
	Length int
}

// ReadResult is the outcome of one [ReadRequest].
//
// Exactly one of Data/Err is meaningful: Err is [io.EOF] for a read starting
// at or past the logical end of file, or a wrapped storage failure. Entries
// are independent; one failing does not affect the others.
type ReadResult struct {
	Data []byte
	Err  error
}

// WriteRequest is one entry of a [File.WriteBatch].
type WriteRequest struct {
	Offset int64
	Data   []byte
}

// Info is a diagnostic snapshot of an open [File], for introspection and
// testing. Counters are cumulative since open.
type Info struct {
	PageSize      int
	MaxPages      int
	FileSize      int64
	ResidentPages int
	DirtyPages    int

	Hits      uint64
	Misses    uint64
	Evictions uint64
	Flushes   uint64
}

// File is an open paged file. See the package documentation for the caching
// and concurrency model.
//
// All methods are safe for concurrent use.
type File struct {
	sess *session
	reqs chan *request

	// mu guards closed. Senders hold the read side across the channel
	// send, so Close (write side) cannot mark the File closed while a
	// send that passed the check is still in flight - every accepted
	// request is enqueued before the close request.
	mu     sync.RWMutex
	closed bool
}

// Open opens the paged file at [Options.Path], creating the backing file if
// it does not exist.
//
// The returned File must be closed with [File.Close] when no longer needed;
// until then the backing file is exclusively locked.
//
// Possible errors:
//   - [ErrInvalidInput]: invalid options
//   - [ErrBusy]: another handle owns the backing file
//   - storage failures from opening or statting the file
func Open(opts Options) (*File, error) {
	opts = opts.withDefaults()

	err := opts.validate()
	if err != nil {
		return nil, err
	}

	handle := opts.Handle
	if handle == nil {
		real, err := storage.Open(opts.Path)
		if err != nil {
			if errors.Is(err, storage.ErrBusy) {
				return nil, fmt.Errorf("%w: %s", ErrBusy, opts.Path)
			}

			return nil, fmt.Errorf("pagedfile: %w", err)
		}

		handle = real
	}

	sess, err := newSession(handle, opts.PageSize, opts.MaxPages, opts.Logger)
	if err != nil {
		_ = handle.Close()

		return nil, err
	}

	f := &File{
		sess: sess,
		reqs: make(chan *request, requestQueueDepth),
	}

	go f.run()

	return f, nil
}

// Delete removes the backing file at path.
//
// The file must not be open; an open File holds an exclusive lock but Delete
// does not check it (unlink succeeds regardless on Unix).
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil {
		return fmt.Errorf("pagedfile: delete: %w", err)
	}

	return nil
}

// ReadAt returns length bytes starting at offset, read through the page
// cache. It blocks until the owner has produced the result, observing every
// previously issued write.
//
// Returns [io.EOF] if offset is at or past the logical end of file. A read
// ending past the logical end returns the clamped remainder instead.
func (f *File) ReadAt(offset int64, length int) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("offset/length must be >= 0: %w", ErrInvalidInput)
	}

	req := &request{
		kind:  opRead,
		reads: []ReadRequest{{Offset: offset, Length: length}},
		reply: make(chan response, 1),
	}

	err := f.send(req)
	if err != nil {
		return nil, err
	}

	resp := <-req.reply

	return resp.results[0].Data, resp.results[0].Err
}

// ReadBatch evaluates the given reads left to right against the same session
// state and returns one [ReadResult] per request.
//
// Batching amortizes dispatch overhead only; there is no atomicity across
// entries beyond the File's usual serialization.
func (f *File) ReadBatch(reads []ReadRequest) ([]ReadResult, error) {
	for i, r := range reads {
		if r.Offset < 0 || r.Length < 0 {
			return nil, fmt.Errorf("read %d: offset/length must be >= 0: %w", i, ErrInvalidInput)
		}
	}

	if len(reads) == 0 {
		return nil, nil
	}

	req := &request{
		kind:  opRead,
		reads: reads,
		reply: make(chan response, 1),
	}

	err := f.send(req)
	if err != nil {
		return nil, err
	}

	resp := <-req.reply

	return resp.results, nil
}

// Write buffers data at offset and returns without waiting for it to be
// applied. data is copied; the caller may reuse the slice immediately.
//
// Because Write does not wait, a failure while applying it cannot be
// reported here: it is logged and returned by the next [File.Sync] or
// [File.Close]. Write itself only fails on invalid input or a closed File.
func (f *File) Write(offset int64, data []byte) error {
	if offset < 0 {
		return fmt.Errorf("offset must be >= 0: %w", ErrInvalidInput)
	}

	if len(data) == 0 {
		return nil
	}

	return f.send(&request{
		kind:   opWrite,
		writes: []WriteRequest{{Offset: offset, Data: bytes.Clone(data)}},
	})
}

// WriteBatch buffers the given writes, applied in slice order, and returns
// without waiting. Data slices are copied. See [File.Write] for the
// fire-and-forget error semantics.
func (f *File) WriteBatch(writes []WriteRequest) error {
	for i, w := range writes {
		if w.Offset < 0 {
			return fmt.Errorf("write %d: offset must be >= 0: %w", i, ErrInvalidInput)
		}
	}

	if len(writes) == 0 {
		return nil
	}

	owned := make([]WriteRequest, len(writes))
	for i, w := range writes {
		owned[i] = WriteRequest{Offset: w.Offset, Data: bytes.Clone(w.Data)}
	}

	return f.send(&request{kind: opWrite, writes: owned})
}

// Sync flushes every dirty page to the underlying handle and blocks until
// done. All pages stay resident; Sync never evicts.
//
// Sync also surfaces the first latched deferred-write failure, if any, and
// clears it.
func (f *File) Sync() error {
	req := &request{kind: opSync, reply: make(chan response, 1)}

	err := f.send(req)
	if err != nil {
		return err
	}

	resp := <-req.reply

	return resp.err
}

// Info returns a diagnostic snapshot of the File.
func (f *File) Info() (Info, error) {
	req := &request{kind: opInfo, reply: make(chan response, 1)}

	err := f.send(req)
	if err != nil {
		return Info{}, err
	}

	resp := <-req.reply

	return resp.info, nil
}

// Close flushes all dirty pages, releases the page buffers, closes the
// underlying handle, and stops the owner goroutine. The File is unusable
// afterward; all operations return [ErrClosed].
//
// Close is not idempotent: a second call returns [ErrClosed].
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()

		return ErrClosed
	}

	f.closed = true
	f.mu.Unlock()

	// Every send that passed the closed check has already been enqueued
	// (senders hold mu's read side across the send), so the close request
	// lands behind all accepted work and nothing gets dropped.
	req := &request{kind: opClose, reply: make(chan response, 1)}
	f.reqs <- req
	resp := <-req.reply

	return resp.err
}

// send enqueues a request for the owner goroutine, failing fast if the File
// is closed.
func (f *File) send(req *request) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrClosed
	}

	f.reqs <- req

	return nil
}
