package bufferpool

import (
	"math/rand"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/bufmgr/src/bufferpool/mocks"
	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
	"github.com/Blackdeer1524/bufmgr/src/pkg/utils"
	"github.com/Blackdeer1524/bufmgr/src/storage/page"
)

var errDisk = errors.New("disk is on fire")

func TestNewRejectsEmptyPool(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidPoolSize)
}

func TestFetchMissThenHit(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMemFile(1)
	file.Seed(3)

	h, err := m.Fetch(file, 1)
	require.NoError(t, err)
	assert.Equal(t, ident(1, 1), h.Ident())

	data, err := h.Data()
	require.NoError(t, err)
	assert.Equal(t, byte(1), data[0])

	again, err := m.Fetch(file, 1)
	require.NoError(t, err)
	assert.Equal(t, h.Frame(), again.Frame())

	assert.Equal(t, []string{"read 1"}, file.Ops())

	state, ok := frameOf(t, m, ident(1, 1))
	require.True(t, ok)
	assert.Equal(t, 2, state.PinCount)
	assert.True(t, state.Referenced)

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	requireConsistent(t, m)
}

func TestFetchSamePageNeverTakesTwoFrames(t *testing.T) {
	m := newTestPool(t, 4)
	file := mocks.NewMemFile(1)
	file.Seed(1)

	for range 3 {
		_, err := m.Fetch(file, 0)
		require.NoError(t, err)
	}

	occupied := 0
	for _, s := range m.Dump() {
		if s.Occupied {
			occupied++
			assert.Equal(t, 3, s.PinCount)
		}
	}
	assert.Equal(t, 1, occupied)
	requireConsistent(t, m)
}

func TestFetchSamePageNumberOfDifferentFiles(t *testing.T) {
	m := newTestPool(t, 2)
	a := mocks.NewMemFile(1)
	b := mocks.NewMemFile(2)
	a.Seed(1)
	b.Seed(1)

	ha, err := m.Fetch(a, 0)
	require.NoError(t, err)
	hb, err := m.Fetch(b, 0)
	require.NoError(t, err)

	assert.NotEqual(t, ha.Frame(), hb.Frame())
	requireConsistent(t, m)
}

func TestScenarioAllFramesPinned(t *testing.T) {
	m := newTestPool(t, 3)
	file := mocks.NewMemFile(1)
	file.Seed(4)

	frames := make(map[FrameID]struct{})
	for i := range 3 {
		h, err := m.Fetch(file, common.PageID(i))
		require.NoError(t, err)
		frames[h.Frame()] = struct{}{}
	}
	assert.Len(t, frames, 3)

	_, err := m.Fetch(file, 3)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.NotContains(t, file.Ops(), "read 3")
	requireConsistent(t, m)
}

func TestScenarioDirtyVictimWrittenBeforeLoad(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMemFile(1)
	file.Seed(3)

	a, err := m.Fetch(file, 0)
	require.NoError(t, err)

	data, err := a.Data()
	require.NoError(t, err)
	utils.Stamp(data, 0xA)
	require.NoError(t, m.Release(file, 0, true))

	_, err = m.Fetch(file, 1)
	require.NoError(t, err)
	_, err = m.Fetch(file, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"read 0", "read 1", "write 0", "read 2"}, file.Ops())

	stored, ok := file.Contents(0)
	require.True(t, ok)
	assert.True(t, utils.HasStamp(stored, 0xA))

	_, resident := frameOf(t, m, ident(1, 0))
	assert.False(t, resident)
	assert.Equal(t, uint64(1), m.Stats().WriteBacks)
	requireConsistent(t, m)
}

func TestCleanVictimIsNotWritten(t *testing.T) {
	m := newTestPool(t, 1)
	file := mocks.NewMemFile(1)
	file.Seed(2)

	_, err := m.Fetch(file, 0)
	require.NoError(t, err)
	require.NoError(t, m.Release(file, 0, false))

	_, err = m.Fetch(file, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"read 0", "read 1"}, file.Ops())
}

func TestEvictionWriteFailureLeavesVictim(t *testing.T) {
	m := newTestPool(t, 1)
	file := mocks.NewMemFile(1)
	file.Seed(2)

	_, err := m.Fetch(file, 0)
	require.NoError(t, err)
	require.NoError(t, m.Release(file, 0, true))

	file.FailOn("write 0", errDisk)

	_, err = m.Fetch(file, 1)
	require.Error(t, err)

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, OpWrite, ioErr.Op)
	assert.Equal(t, ident(1, 0), ioErr.Page)
	assert.ErrorIs(t, err, errDisk)

	state, ok := frameOf(t, m, ident(1, 0))
	require.True(t, ok)
	assert.True(t, state.Occupied)
	assert.True(t, state.Dirty)
	assert.NotContains(t, file.Ops(), "read 1")
	requireConsistent(t, m)
}

func TestFetchReadFailureLeavesFrameFree(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMemFile(1)
	file.Seed(2)
	file.FailOn("read 1", errDisk)

	_, err := m.Fetch(file, 1)
	require.Error(t, err)
	assert.True(t, IsIOError(err))

	for _, s := range m.Dump() {
		assert.False(t, s.Occupied)
	}
	requireConsistent(t, m)

	_, err = m.Fetch(file, 0)
	require.NoError(t, err)
	requireConsistent(t, m)
}

func TestReleaseErrors(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMemFile(1)
	file.Seed(1)

	err := m.Release(file, 0, false)
	assert.ErrorIs(t, err, ErrPageNotFound)

	_, err = m.Fetch(file, 0)
	require.NoError(t, err)
	require.NoError(t, m.Release(file, 0, false))

	err = m.Release(file, 0, false)
	assert.ErrorIs(t, err, ErrPageNotPinned)
	assert.NotErrorIs(t, err, ErrPageNotFound)
	requireConsistent(t, m)
}

func TestReleaseMakesFrameEvictable(t *testing.T) {
	m := newTestPool(t, 1)
	file := mocks.NewMemFile(1)
	file.Seed(2)

	_, err := m.Fetch(file, 0)
	require.NoError(t, err)

	_, err = m.Fetch(file, 1)
	require.ErrorIs(t, err, ErrPoolExhausted)

	require.NoError(t, m.Release(file, 0, false))

	_, err = m.Fetch(file, 1)
	require.NoError(t, err)
	requireConsistent(t, m)
}

func TestReleaseDirtyIsSticky(t *testing.T) {
	m := newTestPool(t, 1)
	file := mocks.NewMemFile(1)
	file.Seed(1)

	_, err := m.Fetch(file, 0)
	require.NoError(t, err)
	_, err = m.Fetch(file, 0)
	require.NoError(t, err)

	require.NoError(t, m.Release(file, 0, true))
	require.NoError(t, m.Release(file, 0, false))

	state, ok := frameOf(t, m, ident(1, 0))
	require.True(t, ok)
	assert.True(t, state.Dirty)
	assert.Zero(t, state.PinCount)
}

func TestAllocateZeroesReusedFrame(t *testing.T) {
	m := newTestPool(t, 1)
	file := mocks.NewMemFile(1)
	file.Seed(1)

	h, err := m.Fetch(file, 0)
	require.NoError(t, err)
	data, err := h.Data()
	require.NoError(t, err)
	utils.Stamp(data, 0xFF)
	require.NoError(t, m.Release(file, 0, false))

	pageID, fresh, err := m.Allocate(file)
	require.NoError(t, err)
	assert.Equal(t, common.PageID(1), pageID)
	assert.Equal(t, ident(1, 1), fresh.Ident())

	data, err = fresh.Data()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, page.Size), data)

	state, ok := frameOf(t, m, ident(1, 1))
	require.True(t, ok)
	assert.Equal(t, 1, state.PinCount)
	assert.False(t, state.Dirty)

	assert.Equal(t, []string{"read 0", "allocate"}, file.Ops())
	requireConsistent(t, m)
}

func TestAllocateFileFailure(t *testing.T) {
	m := newTestPool(t, 1)
	file := mocks.NewMockFile(3)
	file.On("AllocatePage").Return(common.InvalidPageID, errDisk)

	pageID, h, err := m.Allocate(file)
	assert.Equal(t, common.InvalidPageID, pageID)
	assert.Nil(t, h)

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, OpAllocate, ioErr.Op)
	assert.Equal(t, common.FileID(3), ioErr.Page.FileID)

	file.AssertExpectations(t)
	requireConsistent(t, m)
}

func TestAllocateWithoutFreeFrameLeaksPageNumber(t *testing.T) {
	m := newTestPool(t, 1)
	file := mocks.NewMemFile(1)
	file.Seed(1)

	_, err := m.Fetch(file, 0)
	require.NoError(t, err)

	_, _, err = m.Allocate(file)
	require.ErrorIs(t, err, ErrPoolExhausted)

	assert.Equal(t, []string{"read 0", "allocate"}, file.Ops())
	_, onFile := file.Contents(1)
	assert.True(t, onFile, "the allocated page stays allocated in the file")
	requireConsistent(t, m)
}

func TestAllocateDirectoryConflict(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMemFile(1)

	// corrupt the directory: the next page number is already registered
	m.dir.entries[ident(1, 0)] = 1

	_, _, err := m.Allocate(file)
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.ErrorIs(t, err, ErrDirectory)

	for _, s := range m.Dump() {
		assert.False(t, s.Occupied)
	}
}

func TestDisposeResidentPage(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMemFile(1)
	file.Seed(2)

	_, err := m.Fetch(file, 1)
	require.NoError(t, err)
	require.NoError(t, m.Release(file, 1, true))

	require.NoError(t, m.Dispose(file, 1))

	_, resident := frameOf(t, m, ident(1, 1))
	assert.False(t, resident)
	assert.Equal(t, []string{"read 1", "dispose 1"}, file.Ops())

	_, onFile := file.Contents(1)
	assert.False(t, onFile)
	requireConsistent(t, m)
}

func TestDisposePinnedPageInvalidatesHandles(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMemFile(1)
	file.Seed(1)

	h, err := m.Fetch(file, 0)
	require.NoError(t, err)

	require.NoError(t, m.Dispose(file, 0))

	_, err = h.Data()
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.False(t, h.Valid())

	err = m.Release(file, 0, false)
	assert.ErrorIs(t, err, ErrPageNotFound)
	requireConsistent(t, m)
}

func TestDisposeNonResidentPage(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMockFile(1)
	file.On("DisposePage", common.PageID(4)).Return(nil).Once()

	require.NoError(t, m.Dispose(file, 4))

	file.AssertExpectations(t)
	file.AssertNotCalled(t, "WritePage", mock.Anything, mock.Anything)
}

func TestDisposeFileFailure(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMockFile(1)
	file.On("DisposePage", common.PageID(4)).Return(errDisk)

	err := m.Dispose(file, 4)

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, OpDispose, ioErr.Op)
	assert.Equal(t, ident(1, 4), ioErr.Page)
}

func TestFlushWritesDirtyAndEvicts(t *testing.T) {
	m := newTestPool(t, 4)
	file := mocks.NewMemFile(1)
	other := mocks.NewMemFile(2)
	file.Seed(2)
	other.Seed(1)

	for i := range 2 {
		_, err := m.Fetch(file, common.PageID(i))
		require.NoError(t, err)
	}
	_, err := m.Fetch(other, 0)
	require.NoError(t, err)

	require.NoError(t, m.Release(file, 0, true))
	require.NoError(t, m.Release(file, 1, false))

	file.ResetOps()
	require.NoError(t, m.Flush(file))

	assert.Equal(t, []string{"write 0"}, file.Ops())

	for _, s := range m.Dump() {
		if owner, ok := s.Page.Get(); ok {
			assert.Equal(t, common.FileID(2), owner.FileID)
		}
	}

	_, resident := frameOf(t, m, ident(2, 0))
	assert.True(t, resident, "pages of other files are kept")
	requireConsistent(t, m)
}

func TestScenarioFlushStopsAtPinnedPage(t *testing.T) {
	m := newTestPool(t, 3)
	file := mocks.NewMemFile(1)
	file.Seed(3)

	for i := range 3 {
		_, err := m.Fetch(file, common.PageID(i))
		require.NoError(t, err)
	}
	require.NoError(t, m.Release(file, 0, true))
	require.NoError(t, m.Release(file, 1, false))

	file.ResetOps()
	err := m.Flush(file)
	require.ErrorIs(t, err, ErrPagePinned)

	assert.Equal(t, []string{"write 0"}, file.Ops())

	for i := range 2 {
		_, resident := frameOf(t, m, ident(1, common.PageID(i)))
		assert.False(t, resident, "page %d should already be flushed", i)
	}

	state, ok := frameOf(t, m, ident(1, 2))
	require.True(t, ok)
	assert.Equal(t, 1, state.PinCount)
	requireConsistent(t, m)
}

func TestFlushWriteFailure(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMemFile(1)
	file.Seed(1)

	_, err := m.Fetch(file, 0)
	require.NoError(t, err)
	require.NoError(t, m.Release(file, 0, true))

	file.FailOn("write 0", errDisk)

	err = m.Flush(file)
	require.True(t, IsIOError(err))

	state, ok := frameOf(t, m, ident(1, 0))
	require.True(t, ok)
	assert.True(t, state.Dirty)
	requireConsistent(t, m)
}

func TestFlushBadState(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMemFile(1)
	file.Seed(1)

	_, err := m.Fetch(file, 0)
	require.NoError(t, err)
	require.NoError(t, m.Release(file, 0, false))

	// free frame that still carries the file's tag
	m.frames.frames[0].occupied = false
	delete(m.dir.entries, ident(1, 0))

	err = m.Flush(file)
	assert.ErrorIs(t, err, ErrBadState)
}

func TestCloseWritesBackDirtyPages(t *testing.T) {
	m := newTestPool(t, 3)
	file := mocks.NewMemFile(1)
	file.Seed(3)

	for i := range 3 {
		h, err := m.Fetch(file, common.PageID(i))
		require.NoError(t, err)

		data, err := h.Data()
		require.NoError(t, err)
		utils.Stamp(data, uint64(100+i))
	}
	require.NoError(t, m.Release(file, 0, true))
	require.NoError(t, m.Release(file, 1, true))
	require.NoError(t, m.Release(file, 2, false))

	file.FailOn("write 0", errDisk)
	file.ResetOps()

	err := m.Close()
	require.Error(t, err)
	assert.True(t, IsIOError(err))
	assert.ErrorIs(t, err, errDisk)

	assert.Equal(t, []string{"write 0", "write 1"}, file.Ops())

	stored, ok := file.Contents(1)
	require.True(t, ok)
	assert.True(t, utils.HasStamp(stored, 101))

	_, err = m.Fetch(file, 0)
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, m.Close())
	assert.Empty(t, m.Dump())
}

func TestHandleGoesStaleAfterEviction(t *testing.T) {
	m := newTestPool(t, 1)
	file := mocks.NewMemFile(1)
	file.Seed(2)

	h, err := m.Fetch(file, 0)
	require.NoError(t, err)
	assert.True(t, h.Valid())

	require.NoError(t, m.Release(file, 0, false))
	assert.True(t, h.Valid(), "an unpinned page stays readable until evicted")

	_, err = m.Fetch(file, 1)
	require.NoError(t, err)

	_, err = h.Data()
	assert.ErrorIs(t, err, ErrStaleHandle)

	// the page comes back in the same frame, the old handle stays stale
	require.NoError(t, m.Release(file, 1, false))
	again, err := m.Fetch(file, 0)
	require.NoError(t, err)
	assert.Equal(t, h.Frame(), again.Frame())
	assert.False(t, h.Valid())
	assert.True(t, again.Valid())
}

func TestDumpEncoding(t *testing.T) {
	m := newTestPool(t, 2)
	file := mocks.NewMemFile(7)
	file.Seed(2)

	_, err := m.Fetch(file, 1)
	require.NoError(t, err)

	expected := `[
		{"frame":0,"occupied":true,"pin_count":1,"dirty":false,"referenced":true,
		 "page":{"file_id":7,"page_id":1}},
		{"frame":1,"occupied":false,"pin_count":0,"dirty":false,"referenced":false,
		 "page":null}
	]`
	assert.JSONEq(t, expected, string(EncodeFrames(m.Dump())))
}

// TestRandomOperations drives the pool with a random mix of operations and
// checks the invariants and page contents after every step.
func TestRandomOperations(t *testing.T) {
	const (
		poolSize     = 4
		pagesPerFile = 6
		steps        = 3000
	)

	rng := rand.New(rand.NewSource(1524))
	m := newTestPool(t, poolSize)

	files := []*mocks.MemFile{mocks.NewMemFile(1), mocks.NewMemFile(2)}
	stamps := make(map[common.PageIdentity]uint64)
	pins := make(map[common.PageIdentity]int)

	for _, f := range files {
		for i := range pagesPerFile {
			pageID, h, err := m.Allocate(f)
			require.NoError(t, err)

			key := ident(f.ID(), pageID)
			data, err := h.Data()
			require.NoError(t, err)

			stamps[key] = uint64(i) + uint64(f.ID())<<32
			utils.Stamp(data, stamps[key])
			require.NoError(t, m.Release(f, pageID, true))
		}
	}

	for step := range steps {
		f := files[rng.Intn(len(files))]
		pageID := common.PageID(rng.Intn(pagesPerFile))
		key := ident(f.ID(), pageID)

		switch op := rng.Intn(10); {
		case op < 5:
			h, err := m.Fetch(f, pageID)
			if errors.Is(err, ErrPoolExhausted) {
				break
			}
			require.NoError(t, err, "step %d", step)

			data, err := h.Data()
			require.NoError(t, err)
			require.True(t, utils.HasStamp(data, stamps[key]), "step %d: page %s", step, key)
			pins[key]++

			if rng.Intn(2) == 0 {
				stamps[key] = rng.Uint64()
				utils.Stamp(data, stamps[key])
				pins[key]--
				require.NoError(t, m.Release(f, pageID, true))
			}
		case op < 9:
			err := m.Release(f, pageID, false)
			if pins[key] > 0 {
				require.NoError(t, err, "step %d", step)
				pins[key]--
			} else {
				require.True(
					t,
					errors.Is(err, ErrPageNotFound) || errors.Is(err, ErrPageNotPinned),
					"step %d: %v", step, err,
				)
			}
		default:
			err := m.Flush(f)
			if err != nil {
				require.ErrorIs(t, err, ErrPagePinned, "step %d", step)
			}
		}

		requireConsistent(t, m)
	}

	for key, n := range pins {
		file := files[key.FileID-1]
		for range n {
			require.NoError(t, m.Release(file, key.PageID, false))
		}
	}
	require.NoError(t, m.Close())

	for key, stamp := range stamps {
		stored, ok := files[key.FileID-1].Contents(key.PageID)
		require.True(t, ok)
		assert.True(t, utils.HasStamp(stored, stamp), "page %s", key)
	}
}

func TestFilesSharingAnIDConflict(t *testing.T) {
	m := newTestPool(t, 2)
	a := mocks.NewMemFile(1)
	b := mocks.NewMemFile(1)
	a.Seed(1)
	b.Seed(1)

	_, err := m.Fetch(a, 0)
	require.NoError(t, err)

	_, err = m.Fetch(b, 0)
	assert.ErrorIs(t, err, ErrFileIDConflict)
	assert.ErrorIs(t, m.Release(b, 0, true), ErrFileIDConflict)
	assert.ErrorIs(t, m.Dispose(b, 0), ErrFileIDConflict)
	assert.Empty(t, b.Ops())

	require.NoError(t, m.Release(a, 0, false))
	assert.ErrorIs(t, m.Flush(b), ErrFileIDConflict)

	require.NoError(t, m.Flush(a))
	requireConsistent(t, m)
}
