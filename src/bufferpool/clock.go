package bufferpool

import (
	"go.uber.org/zap"
)

// allocateFrame picks a free frame using the clock (second chance) policy.
//
// The hand keeps its position between calls. Each step moves it by one
// frame: a free frame is taken at once, a pinned frame is skipped, a
// referenced frame loses its reference bit and is skipped, and the first
// unpinned unreferenced frame is evicted. The sweep gives up after two full
// revolutions: the first one may be spent clearing reference bits, the
// second one then finds any unpinned frame.
func (m *Manager) allocateFrame() (FrameID, error) {
	maxSteps := 2 * m.poolSize

	for step := uint64(1); step <= maxSteps; step++ {
		m.clockHand = (m.clockHand + 1) % m.poolSize

		frameID := FrameID(m.clockHand)
		f := m.frames.get(frameID)

		if !f.occupied {
			m.metrics.sweep(step)
			return frameID, nil
		}

		if f.pinCount != 0 {
			continue
		}

		if f.referenced {
			f.referenced = false
			continue
		}

		m.metrics.sweep(step)
		if err := m.evict(frameID); err != nil {
			return 0, err
		}

		return frameID, nil
	}

	m.metrics.sweep(maxSteps)

	return 0, ErrPoolExhausted
}

// evict writes the victim back if it is dirty, drops its directory entry
// and frees it. A failed write leaves the frame as it was.
func (m *Manager) evict(frameID FrameID) error {
	f := m.frames.get(frameID)
	ident := f.owner.Expect("occupied frame %d has no owner", frameID)

	if f.dirty {
		err := f.file.WritePage(ident.PageID, m.frames.page(frameID))
		if err != nil {
			m.log.Warnw(
				"failed to write back eviction victim",
				"frame", frameID,
				"page", ident.String(),
				zap.Error(err),
			)

			return &IOError{Op: OpWrite, Page: ident, Err: err}
		}

		f.dirty = false
		m.metrics.writeBack()
	}

	if err := m.dir.remove(ident); err != nil {
		return err
	}

	m.frames.clear(frameID)
	m.metrics.eviction()

	m.log.Debugw("evicted page", "frame", frameID, "page", ident.String())

	return nil
}
