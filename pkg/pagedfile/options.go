package pagedfile

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/calvinalkan/pagedfile/pkg/storage"
)

// Default configuration values used when an [Options] field is zero.
const (
	// DefaultPageSize is the default page size in bytes.
	DefaultPageSize = 512000

	// DefaultMaxPages is the default resident-page budget.
	DefaultMaxPages = 250
)

// Hardcoded implementation limits.
//
// These are intentionally generous; they exist to keep page arithmetic safely
// away from overflow boundaries and to bound memory for configurations the
// project does not test. Violations are configuration errors and return
// [ErrInvalidInput].
const (
	// Maximum allowed page size (bytes).
	maxPageSizeBytes = 1 << 30 // 1 GiB

	// Maximum allowed resident-page budget.
	maxMaxPages = 100_000_000
)

// Options configures opening a paged file.
//
// Configuration is fixed at open time; there is no way to change the page
// size or page budget on a live [File].
type Options struct {
	// Path is the filesystem path of the backing file.
	//
	// Required unless Handle is set. The file is created if it does not
	// exist, and exclusively locked while open (see [ErrBusy]).
	Path string

	// PageSize is the size in bytes of each cached page.
	//
	// Must be >= 1. Defaults to [DefaultPageSize] when zero.
	PageSize int

	// MaxPages is the soft cap on resident pages.
	//
	// The cache holds at most MaxPages pages, transiently MaxPages+1
	// while a load is in flight. Must be >= 1. Defaults to
	// [DefaultMaxPages] when zero.
	MaxPages int

	// Logger receives eviction/flush traces at debug level and deferred
	// write failures at error level. Defaults to [zap.NewNop].
	Logger *zap.Logger

	// Handle overrides the backing storage handle.
	//
	// When set, Path is ignored and the File operates on the given handle
	// directly (the handle is still closed by [File.Close]). The caller
	// must guarantee nothing else touches the handle while the File is
	// open. Used mainly by tests with [storage.Mem].
	Handle storage.Handle
}

// withDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) withDefaults() Options {
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}

	if o.MaxPages == 0 {
		o.MaxPages = DefaultMaxPages
	}

	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	return o
}

// validate checks an already-defaulted Options.
func (o Options) validate() error {
	if o.Path == "" && o.Handle == nil {
		return fmt.Errorf("path is required: %w", ErrInvalidInput)
	}

	if o.PageSize < 1 {
		return fmt.Errorf("page_size must be >= 1, got %d: %w", o.PageSize, ErrInvalidInput)
	}

	if o.PageSize > maxPageSizeBytes {
		return fmt.Errorf("page_size %d exceeds max %d: %w", o.PageSize, maxPageSizeBytes, ErrInvalidInput)
	}

	if o.MaxPages < 1 {
		return fmt.Errorf("max_pages must be >= 1, got %d: %w", o.MaxPages, ErrInvalidInput)
	}

	if o.MaxPages > maxMaxPages {
		return fmt.Errorf("max_pages %d exceeds max %d: %w", o.MaxPages, maxMaxPages, ErrInvalidInput)
	}

	return nil
}
