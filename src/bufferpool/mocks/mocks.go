package mocks

import (
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/mock"

	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
	"github.com/Blackdeer1524/bufmgr/src/storage/page"
)

// MockFile is a testify mock of a page file.
type MockFile struct {
	mock.Mock

	FileID common.FileID
}

func NewMockFile(id common.FileID) *MockFile {
	return &MockFile{FileID: id}
}

func (m *MockFile) ID() common.FileID {
	return m.FileID
}

func (m *MockFile) ReadPage(pageID common.PageID, p *page.Page) error {
	args := m.Called(pageID, p)
	return args.Error(0)
}

func (m *MockFile) WritePage(pageID common.PageID, p *page.Page) error {
	args := m.Called(pageID, p)
	return args.Error(0)
}

func (m *MockFile) AllocatePage() (common.PageID, error) {
	args := m.Called()
	return args.Get(0).(common.PageID), args.Error(1)
}

func (m *MockFile) DisposePage(pageID common.PageID) error {
	args := m.Called(pageID)
	return args.Error(0)
}

var ErrNoSuchPage = errors.New("no such page in memory file")

// MemFile keeps pages in memory and records every call made to it, so tests
// can check the order of reads and writes.
type MemFile struct {
	FileID common.FileID

	mu      sync.Mutex
	pages   map[common.PageID][]byte
	nextID  common.PageID
	ops     []string
	failOps map[string]error
}

func NewMemFile(id common.FileID) *MemFile {
	return &MemFile{
		FileID:  id,
		pages:   make(map[common.PageID][]byte),
		failOps: make(map[string]error),
	}
}

// Seed creates pages 0..n-1, each filled with its own page number.
func (f *MemFile) Seed(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range n {
		data := make([]byte, page.Size)
		data[0] = byte(i)
		f.pages[common.PageID(i)] = data //nolint:gosec
	}

	if common.PageID(n) > f.nextID { //nolint:gosec
		f.nextID = common.PageID(n) //nolint:gosec
	}
}

// FailOn makes the operation named op ("read 3", "write 1", "allocate",
// "dispose 2") return err from now on.
func (f *MemFile) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failOps[op] = err
}

func (f *MemFile) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.ops...)
}

func (f *MemFile) ResetOps() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ops = nil
}

// Contents returns a copy of the stored page.
func (f *MemFile) Contents(pageID common.PageID) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.pages[pageID]
	if !ok {
		return nil, false
	}

	return append([]byte(nil), data...), true
}

func (f *MemFile) ID() common.FileID {
	return f.FileID
}

func (f *MemFile) ReadPage(pageID common.PageID, p *page.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(fmt.Sprintf("read %d", pageID)); err != nil {
		return err
	}

	data, ok := f.pages[pageID]
	if !ok {
		return errors.Wrapf(ErrNoSuchPage, "read %d", pageID)
	}

	p.SetData(data)

	return nil
}

func (f *MemFile) WritePage(pageID common.PageID, p *page.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(fmt.Sprintf("write %d", pageID)); err != nil {
		return err
	}

	if _, ok := f.pages[pageID]; !ok {
		return errors.Wrapf(ErrNoSuchPage, "write %d", pageID)
	}

	f.pages[pageID] = append([]byte(nil), p.GetData()...)

	return nil
}

func (f *MemFile) AllocatePage() (common.PageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("allocate"); err != nil {
		return common.InvalidPageID, err
	}

	pageID := f.nextID
	f.nextID++
	f.pages[pageID] = make([]byte, page.Size)

	return pageID, nil
}

func (f *MemFile) DisposePage(pageID common.PageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(fmt.Sprintf("dispose %d", pageID)); err != nil {
		return err
	}

	if _, ok := f.pages[pageID]; !ok {
		return errors.Wrapf(ErrNoSuchPage, "dispose %d", pageID)
	}

	delete(f.pages, pageID)

	return nil
}

func (f *MemFile) record(op string) error {
	f.ops = append(f.ops, op)

	if err, ok := f.failOps[op]; ok {
		return err
	}

	return nil
}
