package pagedfile

import (
	"errors"
	"fmt"
	"io"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/calvinalkan/pagedfile/pkg/storage"
)

// page is one fixed-size in-memory buffer caching an aligned slice of the
// backing file. A page buffer is always exactly pageSize bytes long; bytes
// past the logical end of file are zero.
type page struct {
	buf []byte
}

// session owns all mutable per-file state: the resident page map, the dirty
// set, the load-order queue, and the logical file size.
//
// A session has no internal locking. It is touched exclusively by the owner
// goroutine of its File (see dispatcher.go), which is what makes the plain
// map, slice, and set safe.
type session struct {
	handle   storage.Handle
	pageSize int64
	maxPages int
	logger   *zap.Logger

	// size is the logical file length as observed by this session. It is
	// initialized from the handle's length at open, grows to cover the
	// highest byte ever written, and never decreases. Reads clamp to it
	// and flushes never write bytes beyond it.
	size int64

	// pages maps page index (offset / pageSize) to its resident buffer.
	pages map[int64]*page

	// loadOrder records resident page indices in the order they were
	// loaded. Head = oldest load = next eviction victim. Re-accessing a
	// resident page does not reorder it.
	loadOrder []int64

	// dirty holds the indices of resident pages whose buffer has diverged
	// from the handle. Always a subset of pages.
	dirty mapset.Set[int64]

	// deferredErr latches the first failure hit while applying
	// fire-and-forget writes. Surfaced by the next sync or close.
	deferredErr error

	stats counters
}

// counters are cumulative since open. They feed [Info] and the prometheus
// collector.
type counters struct {
	hits      uint64
	misses    uint64
	evictions uint64
	flushes   uint64
}

// newSession builds a session over an opened handle. The initial logical
// size is taken from the handle.
func newSession(handle storage.Handle, pageSize, maxPages int, logger *zap.Logger) (*session, error) {
	size, err := handle.Size()
	if err != nil {
		return nil, fmt.Errorf("pagedfile: size: %w", err)
	}

	return &session{
		handle:   handle,
		pageSize: int64(pageSize),
		maxPages: maxPages,
		logger:   logger,
		size:     size,
		pages:    make(map[int64]*page),
		dirty:    mapset.NewThreadUnsafeSet[int64](),
	}, nil
}

// read returns n bytes starting at off, loading pages on demand.
//
// Returns io.EOF when off is at or past the logical end of file. Otherwise n
// is clamped to the remaining logical bytes, so reads never observe the zero
// padding of a tail page.
func (s *session) read(off, n int64) ([]byte, error) {
	if off >= s.size {
		return nil, io.EOF
	}

	n = min(n, s.size-off)
	out := make([]byte, 0, n)

	for n > 0 {
		idx := off / s.pageSize
		pageOff := off % s.pageSize

		pg, err := s.loadPage(idx)
		if err != nil {
			return nil, err
		}

		take := min(s.pageSize-pageOff, n)
		out = append(out, pg.buf[pageOff:pageOff+take]...)

		off += take
		n -= take
	}

	return out, nil
}

// write copies data into the pages covering [off, off+len(data)), loading
// each on demand, marking it dirty, and growing the logical size to cover
// the highest byte written. The size is updated after every page segment, so
// a failure mid-write leaves the size covering exactly what was applied.
func (s *session) write(off int64, data []byte) error {
	for len(data) > 0 {
		idx := off / s.pageSize
		pageOff := off % s.pageSize

		pg, err := s.loadPage(idx)
		if err != nil {
			return err
		}

		n := min(s.pageSize-pageOff, int64(len(data)))
		copy(pg.buf[pageOff:], data[:n])
		s.dirty.Add(idx)

		if end := idx*s.pageSize + pageOff + n; end > s.size {
			s.size = end
		}

		off += n
		data = data[n:]
	}

	return nil
}

// loadPage returns the resident page at idx, reading it from the handle if
// necessary.
//
// A load reads exactly one page worth of bytes at idx*pageSize; a short read
// (or a read wholly past end-of-file) zero-fills the remainder and is not an
// error. Before inserting a new page, if the cache is already over maxPages,
// exactly one page is evicted - the oldest-loaded one - regardless of how far
// over budget the cache is. The check uses the pre-insertion size, which is
// why the resident count can transiently reach maxPages+1.
func (s *session) loadPage(idx int64) (*page, error) {
	if pg, ok := s.pages[idx]; ok {
		s.stats.hits++

		return pg, nil
	}

	s.stats.misses++

	buf := make([]byte, s.pageSize)

	_, err := s.handle.ReadAt(buf, idx*s.pageSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("pagedfile: load page %d: %w", idx, err)
	}

	if len(s.pages) > s.maxPages {
		err := s.evictOldest()
		if err != nil {
			return nil, err
		}
	}

	pg := &page{buf: buf}
	s.pages[idx] = pg
	s.loadOrder = append(s.loadOrder, idx)

	return pg, nil
}

// evictOldest removes the page at the head of the load-order queue, flushing
// it first if dirty.
//
// If the flush fails, the victim stays resident and dirty and the eviction
// is abandoned; the cache is temporarily over budget and self-corrects on
// the next successful load.
func (s *session) evictOldest() error {
	victim := s.loadOrder[0]

	if s.dirty.Contains(victim) {
		err := s.flushPage(victim)
		if err != nil {
			return err
		}
	}

	s.loadOrder = s.loadOrder[1:]
	delete(s.pages, victim)
	s.stats.evictions++

	s.logger.Debug("evicted page", zap.Int64("page", victim))

	return nil
}

// flushPage writes the resident page at idx back to the handle and clears
// its dirty bit.
//
// Only the bytes below the logical file size are written - at most
// min(size - idx*pageSize, pageSize) - never the zero padding past it. A
// page wholly past the logical end writes nothing but still leaves the dirty
// set (should not normally occur, since the size tracks the highest write).
func (s *session) flushPage(idx int64) error {
	pg, ok := s.pages[idx]
	if !ok {
		s.dirty.Remove(idx)

		return nil
	}

	extent := min(s.size-idx*s.pageSize, s.pageSize)
	if extent > 0 {
		_, err := s.handle.WriteAt(pg.buf[:extent], idx*s.pageSize)
		if err != nil {
			return fmt.Errorf("pagedfile: flush page %d: %w", idx, err)
		}

		s.stats.flushes++
	}

	s.dirty.Remove(idx)

	return nil
}

// sync flushes every dirty page. Pages stay resident; sync never evicts.
//
// If a deferred write failure is latched, sync returns it (after flushing
// what it can) and clears the latch.
func (s *session) sync() error {
	var firstErr error

	for _, idx := range s.dirty.ToSlice() {
		err := s.flushPage(idx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return firstErr
	}

	return s.takeDeferredErr()
}

// close flushes all dirty pages, releases every page buffer, and closes the
// handle. The session is unusable afterward.
func (s *session) close() error {
	syncErr := s.sync()

	s.pages = nil
	s.loadOrder = nil
	s.dirty = mapset.NewThreadUnsafeSet[int64]()

	closeErr := s.handle.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("pagedfile: close handle: %w", closeErr)
	}

	return errors.Join(syncErr, closeErr)
}

// applyDeferred applies one fire-and-forget write. Failures cannot reach the
// original caller, so they are logged and the first one is latched for the
// next sync or close. Later writes in the same batch are still attempted;
// each is independent.
func (s *session) applyDeferred(off int64, data []byte) {
	err := s.write(off, data)
	if err == nil {
		return
	}

	s.logger.Error("deferred write failed",
		zap.Int64("offset", off),
		zap.Int("len", len(data)),
		zap.Error(err),
	)

	if s.deferredErr == nil {
		s.deferredErr = err
	}
}

// takeDeferredErr returns and clears the latched deferred write failure.
func (s *session) takeDeferredErr() error {
	err := s.deferredErr
	s.deferredErr = nil

	if err != nil {
		return fmt.Errorf("pagedfile: deferred write failed: %w", err)
	}

	return nil
}

// info captures a diagnostic snapshot of the session.
func (s *session) info() Info {
	return Info{
		PageSize:      int(s.pageSize),
		MaxPages:      s.maxPages,
		FileSize:      s.size,
		ResidentPages: len(s.pages),
		DirtyPages:    s.dirty.Cardinality(),
		Hits:          s.stats.hits,
		Misses:        s.stats.misses,
		Evictions:     s.stats.evictions,
		Flushes:       s.stats.flushes,
	}
}
