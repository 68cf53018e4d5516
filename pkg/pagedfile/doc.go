// Package pagedfile provides a buffered random-access file layer.
//
// A [File] interposes a bounded, page-granular write-back cache between the
// caller and an underlying storage handle, so read-modify-write workloads
// (many small scattered reads and writes) run against in-memory pages rather
// than issuing one positioned I/O per operation.
//
// # Basic Usage
//
//	f, err := pagedfile.Open(pagedfile.Options{Path: "/tmp/data.bin"})
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	_ = f.Write(1024, []byte("hello"))   // buffered, returns immediately
//	b, err := f.ReadAt(1024, 5)          // "hello", read through the cache
//	err = f.Sync()                       // flush dirty pages to the handle
//
// # Paging model
//
// The file is cached in fixed-size pages of [Options.PageSize] bytes. A page
// is loaded on first access to its index (offset / page size); short reads
// past end-of-file are zero-filled, so a page buffer is always exactly one
// page long. At most [Options.MaxPages] pages stay resident (transiently
// MaxPages+1 during a load); when the cache is over capacity, the
// oldest-loaded page is evicted, flushed first if dirty. Eviction is
// FIFO-by-load-time, not LRU: re-reading or re-writing a resident page does
// not make it younger.
//
// A flush writes back only the bytes below the logical file size, so the
// zero padding of a tail page never lands on disk. The logical size grows to
// cover the highest byte ever written and never shrinks.
//
// # Concurrency
//
// Every open File is owned by a single goroutine that serializes all page
// operations, so File methods are safe for concurrent use. [File.ReadAt],
// [File.ReadBatch], [File.Sync], [File.Info] and [File.Close] block until the
// owner has produced a result.
//
// [File.Write] and [File.WriteBatch] are fire-and-forget: they enqueue the
// operation (copying the data) and return before it is applied. Operations
// issued by one goroutine are applied in issuance order, so a read that
// follows a write always observes it. When the owner picks up a write, it
// opportunistically drains every other write already waiting in the queue and
// applies them as one batch, which lets a burst of small writes share page
// loads. Draining never reorders a write past an earlier read, sync, or
// close, and never pulls in requests that arrive later.
//
// Because writes do not wait, they cannot report failures to their caller. A
// failure while applying a deferred write is logged through [Options.Logger]
// and latched; the next [File.Sync] or [File.Close] returns it. Blocking
// calls have no deadline or cancellation: if the underlying handle stalls,
// so do they.
//
// # Errors
//
// A read starting at or past the logical end of file returns [io.EOF]. That
// is a distinguished result, not a failure, and distinct from an empty byte
// slice. Failures of the underlying handle are wrapped and surfaced by the
// blocking operation that hit them. Operations on a closed File return
// [ErrClosed].
package pagedfile
