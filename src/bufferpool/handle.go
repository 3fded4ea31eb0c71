package bufferpool

import (
	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
)

// PageHandle refers to the frame a page was pinned in. It remembers the
// frame's generation, so a handle kept past the page's eviction or disposal
// reports ErrStaleHandle instead of exposing another page's bytes.
type PageHandle struct {
	pool       *Manager
	frame      FrameID
	generation uint64
	ident      common.PageIdentity
}

func (m *Manager) handleAssumeLocked(frameID FrameID) *PageHandle {
	f := m.frames.get(frameID)

	return &PageHandle{
		pool:       m,
		frame:      frameID,
		generation: f.generation,
		ident:      f.owner.Unwrap(),
	}
}

func (h *PageHandle) Ident() common.PageIdentity {
	return h.ident
}

func (h *PageHandle) Frame() FrameID {
	return h.frame
}

// Data returns the page contents. The slice aliases the frame buffer and
// must only be used while the caller holds a pin on the page.
func (h *PageHandle) Data() ([]byte, error) {
	m := h.pool

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkHandleAssumeLocked(h); err != nil {
		return nil, err
	}

	return m.frames.page(h.frame).GetData(), nil
}

func (h *PageHandle) Valid() bool {
	m := h.pool

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.checkHandleAssumeLocked(h) == nil
}

func (m *Manager) checkHandleAssumeLocked(h *PageHandle) error {
	if m.closed {
		return ErrPoolClosed
	}

	f := m.frames.get(h.frame)
	if !f.occupied || f.generation != h.generation {
		return ErrStaleHandle
	}

	return nil
}
