// Black-box tests for the public pagedfile API.
//
// Most tests use page_size = 128 so page boundaries are easy to hit, and a
// storage.Mem handle so the raw backing bytes stay inspectable.

package pagedfile_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/pagedfile/pkg/pagedfile"
	"github.com/calvinalkan/pagedfile/pkg/storage"
)

const testPageSize = 128

// openMem opens a File over a fresh in-memory handle and returns both.
func openMem(t *testing.T, maxPages int) (*pagedfile.File, *storage.Mem) {
	t.Helper()

	mem := storage.NewMem()

	f, err := pagedfile.Open(pagedfile.Options{
		Handle:   mem,
		PageSize: testPageSize,
		MaxPages: maxPages,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	return f, mem
}

func Test_ReadAt_Returns_Written_Bytes_Before_And_After_Sync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		offset int64
		data   string
	}{
		{"within first page", 0, "123"},
		{"mid page", 57, "hello world"},
		{"crossing page boundary", 120, "0123456789abcdef"},
		{"crossing two boundaries", 100, string(bytes.Repeat([]byte{0xAB}, 200))},
		{"far from origin", 10 * testPageSize, "tail"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			f, _ := openMem(t, 4)
			defer f.Close()

			err := f.Write(testCase.offset, []byte(testCase.data))
			if err != nil {
				t.Fatalf("write: %v", err)
			}

			got, err := f.ReadAt(testCase.offset, len(testCase.data))
			if err != nil {
				t.Fatalf("read before sync: %v", err)
			}

			if string(got) != testCase.data {
				t.Errorf("before sync: got %q, want %q", got, testCase.data)
			}

			err = f.Sync()
			if err != nil {
				t.Fatalf("sync: %v", err)
			}

			got, err = f.ReadAt(testCase.offset, len(testCase.data))
			if err != nil {
				t.Fatalf("read after sync: %v", err)
			}

			if string(got) != testCase.data {
				t.Errorf("after sync: got %q, want %q", got, testCase.data)
			}
		})
	}
}

func Test_ReadAt_Returns_EOF_When_Offset_At_Or_Past_Logical_End(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 4)
	defer f.Close()

	// Crosses into page index 1; logical size becomes 144.
	err := f.Write(140, []byte("1234"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, offset := range []int64{144, 145, 256} {
		_, err := f.ReadAt(offset, 10)
		if !errors.Is(err, io.EOF) {
			t.Errorf("read(%d, 10): err = %v, want io.EOF", offset, err)
		}
	}

	// A read that starts below the logical end is clamped, not EOF.
	got, err := f.ReadAt(140, 10)
	if err != nil {
		t.Fatalf("read(140, 10): %v", err)
	}

	if string(got) != "1234" {
		t.Errorf("read(140, 10) = %q, want %q", got, "1234")
	}
}

func Test_ReadAt_Returns_Zero_Bytes_For_Unwritten_Gap_Below_Logical_End(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 4)
	defer f.Close()

	// Writing far out extends the logical size; the gap was never written.
	err := f.Write(300, []byte("x"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := f.ReadAt(10, 50)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if !bytes.Equal(got, make([]byte, 50)) {
		t.Errorf("gap read = %v, want 50 zero bytes", got)
	}
}

func Test_ReadAt_Returns_Empty_Slice_For_Zero_Length_Read_Below_End(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 4)
	defer f.Close()

	err := f.Write(0, []byte("abc"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := f.ReadAt(1, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if len(got) != 0 {
		t.Errorf("zero-length read returned %d bytes", len(got))
	}
}

func Test_Evicted_Dirty_Page_Survives_Round_Trip(t *testing.T) {
	t.Parallel()

	f, mem := openMem(t, 2)
	defer f.Close()

	// One distinct tag per page, written in increasing index order. With
	// max_pages = 2, loading page 3 evicts page 0, which must be flushed,
	// not dropped.
	tags := []string{"AAAA", "BBBB", "CCCC", "DDDD"}
	for i, tag := range tags {
		err := f.Write(int64(i)*testPageSize, []byte(tag))
		if err != nil {
			t.Fatalf("write page %d: %v", i, err)
		}
	}

	got, err := f.ReadAt(0, 4)
	if err != nil {
		t.Fatalf("read page 0: %v", err)
	}

	if string(got) != "AAAA" {
		t.Errorf("page 0 after eviction = %q, want %q", got, "AAAA")
	}

	// The evicted page's bytes must already be on the raw handle.
	if raw := mem.Bytes(); len(raw) < 4 || string(raw[:4]) != "AAAA" {
		t.Errorf("raw handle prefix = %q, want %q", raw[:min(len(raw), 4)], "AAAA")
	}
}

func Test_Resident_Pages_Never_Exceed_MaxPages_Plus_One(t *testing.T) {
	t.Parallel()

	const maxPages = 3

	f, _ := openMem(t, maxPages)
	defer f.Close()

	for i := range 20 {
		err := f.Write(int64(i)*testPageSize, []byte{byte(i)})
		if err != nil {
			t.Fatalf("write: %v", err)
		}

		info, err := f.Info()
		if err != nil {
			t.Fatalf("info: %v", err)
		}

		if info.ResidentPages > maxPages+1 {
			t.Fatalf("after touching page %d: resident = %d, want <= %d",
				i, info.ResidentPages, maxPages+1)
		}
	}
}

func Test_Sync_Is_Idempotent(t *testing.T) {
	t.Parallel()

	f, mem := openMem(t, 4)
	defer f.Close()

	err := f.Write(10, []byte("data"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	err = f.Sync()
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}

	info, err := f.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}

	if info.DirtyPages != 0 {
		t.Errorf("dirty pages after sync = %d, want 0", info.DirtyPages)
	}

	rawAfterFirst := bytes.Clone(mem.Bytes())
	flushesAfterFirst := info.Flushes

	err = f.Sync()
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}

	info, err = f.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}

	if info.Flushes != flushesAfterFirst {
		t.Errorf("second sync flushed %d more pages, want 0", info.Flushes-flushesAfterFirst)
	}

	if !bytes.Equal(mem.Bytes(), rawAfterFirst) {
		t.Error("second sync changed raw bytes")
	}
}

func Test_Data_Persists_Across_Reopen_And_Matches_Raw_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")

	opts := pagedfile.Options{Path: path, PageSize: testPageSize, MaxPages: 4}

	f, err := pagedfile.Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	err = f.Write(0, []byte("123"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := f.ReadAt(0, 3)
	if err != nil || string(got) != "123" {
		t.Fatalf("read before close = %q, %v; want %q", got, err, "123")
	}

	err = f.Sync()
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	err = f.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	// An independent raw read, bypassing the layer entirely.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("raw read: %v", err)
	}

	if string(raw) != "123" {
		t.Errorf("raw file = %q, want %q", raw, "123")
	}

	reopened, err := pagedfile.Open(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err = reopened.ReadAt(0, 3)
	if err != nil {
		t.Fatalf("read after reopen: %v", err)
	}

	if string(got) != "123" {
		t.Errorf("read after reopen = %q, want %q", got, "123")
	}
}

func Test_Read_Observes_Prior_Writes_In_Issuance_Order(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 4)
	defer f.Close()

	// Three fire-and-forget writes back to back, no waiting in between.
	for i, chunk := range []string{"aaaa", "bbbb", "cccc"} {
		err := f.Write(int64(i)*4, []byte(chunk))
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	got, err := f.ReadAt(0, 12)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "aaaabbbbcccc" {
		t.Errorf("read = %q, want %q", got, "aaaabbbbcccc")
	}
}

func Test_Later_Write_Wins_When_Ranges_Overlap(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 4)
	defer f.Close()

	_ = f.Write(0, []byte("xxxxxxxx"))
	_ = f.Write(2, []byte("yy"))

	got, err := f.ReadAt(0, 8)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "xxyyxxxx" {
		t.Errorf("read = %q, want %q", got, "xxyyxxxx")
	}
}

func Test_Write_Copies_Caller_Buffer(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 4)
	defer f.Close()

	buf := []byte("original")

	err := f.Write(0, buf)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	// Mutating the caller's slice after Write must not change what is read.
	copy(buf, "CLOBBERED")

	got, err := f.ReadAt(0, 8)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "original" {
		t.Errorf("read = %q, want %q", got, "original")
	}
}

func Test_ReadBatch_Evaluates_Entries_Independently(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 4)
	defer f.Close()

	err := f.Write(0, []byte("abcdef"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	results, err := f.ReadBatch([]pagedfile.ReadRequest{
		{Offset: 0, Length: 3},
		{Offset: 1000, Length: 4}, // past logical end
		{Offset: 3, Length: 3},
	})
	if err != nil {
		t.Fatalf("read batch: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	if string(results[0].Data) != "abc" || results[0].Err != nil {
		t.Errorf("results[0] = %q, %v; want %q, nil", results[0].Data, results[0].Err, "abc")
	}

	if !errors.Is(results[1].Err, io.EOF) {
		t.Errorf("results[1].Err = %v, want io.EOF", results[1].Err)
	}

	if string(results[2].Data) != "def" || results[2].Err != nil {
		t.Errorf("results[2] = %q, %v; want %q, nil", results[2].Data, results[2].Err, "def")
	}
}

func Test_WriteBatch_Applies_Entries_In_Order(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 4)
	defer f.Close()

	err := f.WriteBatch([]pagedfile.WriteRequest{
		{Offset: 0, Data: []byte("11111111")},
		{Offset: 4, Data: []byte("2222")},
		{Offset: 6, Data: []byte("33")},
	})
	if err != nil {
		t.Fatalf("write batch: %v", err)
	}

	got, err := f.ReadAt(0, 8)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "11112233" {
		t.Errorf("read = %q, want %q", got, "11112233")
	}
}

func Test_Info_Reflects_Cache_State(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 3)
	defer f.Close()

	// Two writes on page 0 (one miss, one hit), one on page 2.
	_ = f.Write(0, []byte("abc"))
	_ = f.Write(3, []byte("def"))
	_ = f.Write(2*testPageSize, []byte("g"))

	err := f.Sync()
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	info, err := f.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}

	want := pagedfile.Info{
		PageSize:      testPageSize,
		MaxPages:      3,
		FileSize:      2*testPageSize + 1,
		ResidentPages: 2,
		DirtyPages:    0,
		Hits:          1,
		Misses:        2,
		Evictions:     0,
		Flushes:       2,
	}

	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}
}

func Test_Operations_Return_ErrClosed_After_Close(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 4)

	err := f.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err = f.ReadAt(0, 1)
	if !errors.Is(err, pagedfile.ErrClosed) {
		t.Errorf("ReadAt after close: err = %v, want ErrClosed", err)
	}

	err = f.Write(0, []byte("x"))
	if !errors.Is(err, pagedfile.ErrClosed) {
		t.Errorf("Write after close: err = %v, want ErrClosed", err)
	}

	err = f.Sync()
	if !errors.Is(err, pagedfile.ErrClosed) {
		t.Errorf("Sync after close: err = %v, want ErrClosed", err)
	}

	_, err = f.Info()
	if !errors.Is(err, pagedfile.ErrClosed) {
		t.Errorf("Info after close: err = %v, want ErrClosed", err)
	}

	err = f.Close()
	if !errors.Is(err, pagedfile.ErrClosed) {
		t.Errorf("second Close: err = %v, want ErrClosed", err)
	}
}

func Test_Open_Returns_ErrBusy_When_File_Already_Open(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	opts := pagedfile.Options{Path: path}

	f, err := pagedfile.Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	_, err = pagedfile.Open(opts)
	if !errors.Is(err, pagedfile.ErrBusy) {
		t.Errorf("second open: err = %v, want ErrBusy", err)
	}
}

func Test_Open_Succeeds_After_Previous_Owner_Closes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	opts := pagedfile.Options{Path: path}

	f, err := pagedfile.Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	err = f.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	f2, err := pagedfile.Open(opts)
	if err != nil {
		t.Fatalf("open after close: %v", err)
	}

	_ = f2.Close()
}

func Test_Delete_Removes_Backing_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")

	f, err := pagedfile.Open(pagedfile.Options{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_ = f.Write(0, []byte("x"))

	err = f.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	err = pagedfile.Delete(path)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err = os.Stat(path)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stat after delete: err = %v, want not-exist", err)
	}
}

func Test_Open_Rejects_Invalid_Options(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts pagedfile.Options
	}{
		{"empty path and no handle", pagedfile.Options{}},
		{"negative page size", pagedfile.Options{Path: "x", PageSize: -1}},
		{"negative max pages", pagedfile.Options{Path: "x", MaxPages: -3}},
		{"page size over limit", pagedfile.Options{Path: "x", PageSize: 1 << 31}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := pagedfile.Open(testCase.opts)
			if !errors.Is(err, pagedfile.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func Test_ReadAt_Rejects_Negative_Arguments(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 4)
	defer f.Close()

	_, err := f.ReadAt(-1, 10)
	if !errors.Is(err, pagedfile.ErrInvalidInput) {
		t.Errorf("negative offset: err = %v, want ErrInvalidInput", err)
	}

	_, err = f.ReadAt(0, -1)
	if !errors.Is(err, pagedfile.ErrInvalidInput) {
		t.Errorf("negative length: err = %v, want ErrInvalidInput", err)
	}

	err = f.Write(-1, []byte("x"))
	if !errors.Is(err, pagedfile.ErrInvalidInput) {
		t.Errorf("negative write offset: err = %v, want ErrInvalidInput", err)
	}
}

func Test_ReadAt_Propagates_Storage_Read_Failure(t *testing.T) {
	t.Parallel()

	faulty := storage.NewFaulty(storage.NewMemBytes(bytes.Repeat([]byte{1}, 4*testPageSize)))

	f, err := pagedfile.Open(pagedfile.Options{
		Handle:   faulty,
		PageSize: testPageSize,
		MaxPages: 4,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	injected := errors.New("disk on fire")
	faulty.FailReads(1, injected)

	_, err = f.ReadAt(0, 8)
	if !errors.Is(err, injected) {
		t.Errorf("err = %v, want wrapped %v", err, injected)
	}

	if !storage.IsInjected(err) {
		t.Errorf("err = %v, want injected marker", err)
	}

	// The failed load must not leave a broken page behind.
	got, err := f.ReadAt(0, 8)
	if err != nil {
		t.Fatalf("read after fault cleared: %v", err)
	}

	if !bytes.Equal(got, bytes.Repeat([]byte{1}, 8)) {
		t.Errorf("read after fault = %v, want ones", got)
	}
}

func Test_Sync_Surfaces_Deferred_Write_Failure(t *testing.T) {
	t.Parallel()

	faulty := storage.NewFaulty(storage.NewMem())

	f, err := pagedfile.Open(pagedfile.Options{
		Handle:   faulty,
		PageSize: testPageSize,
		MaxPages: 4,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	// The deferred write fails while loading its target page; the caller
	// cannot see that, so the next Sync must return it.
	injected := errors.New("read side down")
	faulty.FailReads(1, injected)

	err = f.Write(0, []byte("lost"))
	if err != nil {
		t.Fatalf("write returned synchronous error: %v", err)
	}

	err = f.Sync()
	if !errors.Is(err, injected) {
		t.Errorf("sync err = %v, want wrapped %v", err, injected)
	}

	// The latch is cleared once surfaced.
	err = f.Sync()
	if err != nil {
		t.Errorf("second sync err = %v, want nil", err)
	}
}

func Test_Close_Surfaces_Deferred_Write_Failure(t *testing.T) {
	t.Parallel()

	faulty := storage.NewFaulty(storage.NewMem())

	f, err := pagedfile.Open(pagedfile.Options{
		Handle:   faulty,
		PageSize: testPageSize,
		MaxPages: 4,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	injected := errors.New("read side down")
	faulty.FailReads(1, injected)

	err = f.Write(0, []byte("lost"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	err = f.Close()
	if !errors.Is(err, injected) {
		t.Errorf("close err = %v, want wrapped %v", err, injected)
	}
}

func Test_Sync_Reports_Flush_Failure(t *testing.T) {
	t.Parallel()

	faulty := storage.NewFaulty(storage.NewMem())

	f, err := pagedfile.Open(pagedfile.Options{
		Handle:   faulty,
		PageSize: testPageSize,
		MaxPages: 4,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	err = f.Write(0, []byte("dirty"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	injected := errors.New("write side down")
	faulty.FailWrites(1, injected)

	err = f.Sync()
	if !errors.Is(err, injected) {
		t.Errorf("sync err = %v, want wrapped %v", err, injected)
	}

	// The page is still dirty; a later sync retries and succeeds.
	err = f.Sync()
	if err != nil {
		t.Fatalf("retry sync: %v", err)
	}

	got, err := f.ReadAt(0, 5)
	if err != nil || string(got) != "dirty" {
		t.Errorf("read = %q, %v; want %q", got, err, "dirty")
	}
}
