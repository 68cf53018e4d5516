package pagedfile_test

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/calvinalkan/pagedfile/pkg/pagedfile"
)

func Test_Concurrent_Writers_To_Disjoint_Regions_All_Land(t *testing.T) {
	t.Parallel()

	const (
		workers            = 8
		writesPerGoroutine = 50
		chunk              = 16
	)

	f, _ := openMem(t, 4)
	defer f.Close()

	var wg sync.WaitGroup

	for w := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			// Each worker owns a disjoint stripe of the file.
			base := int64(w) * writesPerGoroutine * chunk
			payload := bytes.Repeat([]byte{byte('A' + w)}, chunk)

			for i := range int64(writesPerGoroutine) {
				err := f.Write(base+i*chunk, payload)
				if err != nil {
					t.Errorf("worker %d write %d: %v", w, i, err)

					return
				}
			}
		}()
	}

	wg.Wait()

	err := f.Sync()
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	for w := range workers {
		base := int64(w) * writesPerGoroutine * chunk
		want := bytes.Repeat([]byte{byte('A' + w)}, writesPerGoroutine*chunk)

		got, err := f.ReadAt(base, len(want))
		if err != nil {
			t.Fatalf("worker %d region read: %v", w, err)
		}

		if !bytes.Equal(got, want) {
			t.Errorf("worker %d region corrupted", w)
		}
	}
}

func Test_Concurrent_Readers_See_Consistent_Bytes(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 2)
	defer f.Close()

	want := bytes.Repeat([]byte("0123456789abcdef"), 64) // spans 8 pages

	err := f.Write(0, want)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 25 {
				got, err := f.ReadAt(0, len(want))
				if err != nil {
					t.Errorf("read: %v", err)

					return
				}

				if !bytes.Equal(got, want) {
					t.Error("read returned corrupted bytes")

					return
				}
			}
		}()
	}

	wg.Wait()
}

func Test_Close_During_Concurrent_Operations_Never_Hangs(t *testing.T) {
	t.Parallel()

	f, _ := openMem(t, 4)

	var wg sync.WaitGroup

	start := make(chan struct{})

	for w := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			<-start

			for i := range int64(100) {
				// Each operation either completes normally or
				// reports ErrClosed; nothing may hang or panic.
				err := f.Write(i*8, []byte{byte(w)})
				if err != nil && !errors.Is(err, pagedfile.ErrClosed) {
					t.Errorf("write: %v", err)

					return
				}

				_, err = f.ReadAt(0, 8)
				if err != nil && !isBenignAfterClose(err) {
					t.Errorf("read: %v", err)

					return
				}
			}
		}()
	}

	close(start)

	err := f.Close()
	if err != nil {
		t.Errorf("close: %v", err)
	}

	wg.Wait()

	err = f.Close()
	if !errors.Is(err, pagedfile.ErrClosed) {
		t.Errorf("second close: err = %v, want ErrClosed", err)
	}
}

// isBenignAfterClose accepts the errors a racing read may legitimately see:
// ErrClosed once the file shuts down, or io.EOF before the first write lands.
func isBenignAfterClose(err error) bool {
	if err == nil {
		return true
	}

	return errors.Is(err, pagedfile.ErrClosed) || errors.Is(err, io.EOF)
}
