package disk

import (
	"io"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
	"github.com/Blackdeer1524/bufmgr/src/storage/page"
)

var (
	ErrInvalidPage  = errors.New("invalid page")
	ErrCorruptFile  = errors.New("file size is not a multiple of the page size")
	ErrFileClosed   = errors.New("file is closed")
	errShortRead    = errors.New("short page read")
	errEmptyPageBuf = errors.New("page buffer is nil")
)

// File is a page file: a sequence of page.Size blocks addressed by page
// number. Disposed page numbers are kept in memory and handed out again by
// AllocatePage before the file grows.
type File struct {
	id   common.FileID
	path string

	mu       sync.RWMutex
	f        afero.File
	numPages common.PageID
	disposed []common.PageID // sorted ascending
}

func newFile(id common.FileID, path string, f afero.File) (*File, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}

	size := info.Size()
	if size%page.Size != 0 {
		return nil, errors.Wrapf(ErrCorruptFile, "%s has %d bytes", path, size)
	}

	return &File{
		id:       id,
		path:     path,
		f:        f,
		numPages: common.PageID(size / page.Size), //nolint:gosec
	}, nil
}

func (f *File) ID() common.FileID {
	return f.id
}

// NumPages reports how many page slots the file has, including disposed
// ones.
func (f *File) NumPages() common.PageID {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.numPages
}

func (f *File) ReadPage(pageID common.PageID, p *page.Page) error {
	if p == nil {
		return errEmptyPageBuf
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkLiveAssumeLocked(pageID); err != nil {
		return err
	}

	data := p.GetData()

	n, err := f.f.ReadAt(data, offset(pageID))
	if err != nil && !(errors.Is(err, io.EOF) && n == len(data)) {
		return errors.Wrapf(err, "read page %d of %s", pageID, f.path)
	}

	if n != len(data) {
		return errors.Wrapf(errShortRead, "page %d of %s: %d bytes", pageID, f.path, n)
	}

	return nil
}

func (f *File) WritePage(pageID common.PageID, p *page.Page) error {
	if p == nil {
		return errEmptyPageBuf
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkLiveAssumeLocked(pageID); err != nil {
		return err
	}

	if _, err := f.f.WriteAt(p.GetData(), offset(pageID)); err != nil {
		return errors.Wrapf(err, "write page %d of %s", pageID, f.path)
	}

	return nil
}

// AllocatePage returns the lowest disposed page number, or appends a zeroed
// page to the file when none is available.
func (f *File) AllocatePage() (common.PageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.f == nil {
		return common.InvalidPageID, ErrFileClosed
	}

	if len(f.disposed) > 0 {
		pageID := f.disposed[0]
		f.disposed = f.disposed[1:]

		return pageID, nil
	}

	pageID := f.numPages

	var zero page.Page
	if _, err := f.f.WriteAt(zero.GetData(), offset(pageID)); err != nil {
		return common.InvalidPageID, errors.Wrapf(err, "extend %s", f.path)
	}

	f.numPages++

	return pageID, nil
}

func (f *File) DisposePage(pageID common.PageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkLiveAssumeLocked(pageID); err != nil {
		return err
	}

	idx, _ := slices.BinarySearch(f.disposed, pageID)
	f.disposed = slices.Insert(f.disposed, idx, pageID)

	return nil
}

func (f *File) Sync() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.f == nil {
		return ErrFileClosed
	}

	return f.f.Sync()
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.f == nil {
		return nil
	}

	err := f.f.Close()
	f.f = nil

	return err
}

func (f *File) checkLiveAssumeLocked(pageID common.PageID) error {
	if f.f == nil {
		return ErrFileClosed
	}

	if pageID >= f.numPages {
		return errors.Wrapf(ErrInvalidPage, "page %d is past the end of %s", pageID, f.path)
	}

	if _, found := slices.BinarySearch(f.disposed, pageID); found {
		return errors.Wrapf(ErrInvalidPage, "page %d of %s is disposed", pageID, f.path)
	}

	return nil
}

func offset(pageID common.PageID) int64 {
	return int64(pageID) * page.Size //nolint:gosec
}
