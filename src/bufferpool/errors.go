package bufferpool

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
)

var (
	ErrInvalidPoolSize = errors.New("pool size must be greater than zero")
	ErrPoolExhausted   = errors.New("all frames are pinned")
	ErrPoolClosed      = errors.New("buffer pool is closed")

	// ErrDirectory marks an inconsistency between the page directory and
	// the frame table. It is never repaired.
	ErrDirectory    = errors.New("page directory inconsistency")
	ErrDuplicateKey = errors.Wrap(ErrDirectory, "duplicate key")
	ErrKeyNotFound  = errors.Wrap(ErrDirectory, "key not found")

	ErrPageNotFound   = errors.New("page is not in the buffer pool")
	ErrPageNotPinned  = errors.New("page is not pinned")
	ErrPagePinned     = errors.New("page is pinned")
	ErrBadState       = errors.New("free frame is still tagged with a file")
	ErrStaleHandle    = errors.New("page handle refers to an evicted frame")
	ErrFileIDConflict = errors.New("another file already uses this file ID")
)

type IOOp string

const (
	OpRead     IOOp = "read"
	OpWrite    IOOp = "write"
	OpAllocate IOOp = "allocate"
	OpDispose  IOOp = "dispose"
)

// IOError is returned when a call into a File fails. Page.PageID is
// common.InvalidPageID for a failed allocation.
type IOError struct {
	Op   IOOp
	Page common.PageIdentity
	Err  error
}

func (e *IOError) Error() string {
	if e.Page.PageID == common.InvalidPageID {
		return fmt.Sprintf("%s page in file %d: %v", e.Op, e.Page.FileID, e.Err)
	}

	return fmt.Sprintf("%s page %s: %v", e.Op, e.Page, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
