package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
)

func newTestPool(t *testing.T, poolSize uint64) *Manager {
	t.Helper()

	m, err := New(poolSize)
	require.NoError(t, err)

	return m
}

// requireConsistent checks the frame invariants and that the directory
// holds exactly the keys of occupied frames.
func requireConsistent(t *testing.T, m *Manager) {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	owners := make(map[common.PageIdentity]FrameID)
	for i := range m.frames.size() {
		frameID := FrameID(i) //nolint:gosec
		f := m.frames.get(frameID)

		require.GreaterOrEqual(t, f.pinCount, 0, "frame %d", frameID)

		if !f.occupied {
			require.Zero(t, f.pinCount, "free frame %d is pinned", frameID)
			require.False(t, f.dirty, "free frame %d is dirty", frameID)
			require.True(t, f.owner.IsNone(), "free frame %d has an owner", frameID)

			continue
		}

		ident := f.owner.Unwrap()
		prev, dup := owners[ident]
		require.False(t, dup, "page %s is in frames %d and %d", ident, prev, frameID)

		owners[ident] = frameID
	}

	require.Equal(t, owners, m.dir.entries)
}

func frameOf(t *testing.T, m *Manager, ident common.PageIdentity) (FrameState, bool) {
	t.Helper()

	for _, s := range m.Dump() {
		if owner, ok := s.Page.Get(); ok && owner == ident {
			return s, true
		}
	}

	return FrameState{}, false
}

func ident(fileID common.FileID, pageID common.PageID) common.PageIdentity {
	return common.NewPageIdentity(fileID, pageID)
}
