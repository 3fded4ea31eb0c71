package bufferpool

import (
	"github.com/go-faster/jx"

	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
	"github.com/Blackdeer1524/bufmgr/src/pkg/optional"
)

type FrameState struct {
	Frame      FrameID
	Occupied   bool
	PinCount   int
	Dirty      bool
	Referenced bool
	Page       optional.Optional[common.PageIdentity]
}

// Dump reports the state of every frame. It does not touch reference bits
// or pins.
func (m *Manager) Dump() []FrameState {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make([]FrameState, 0, m.frames.size())
	for i := range m.frames.size() {
		f := m.frames.get(FrameID(i)) //nolint:gosec

		states = append(states, FrameState{
			Frame:      FrameID(i), //nolint:gosec
			Occupied:   f.occupied,
			PinCount:   f.pinCount,
			Dirty:      f.dirty,
			Referenced: f.referenced,
			Page:       f.owner,
		})
	}

	return states
}

func (s FrameState) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.Field("frame", func(e *jx.Encoder) { e.UInt64(uint64(s.Frame)) })
	e.Field("occupied", func(e *jx.Encoder) { e.Bool(s.Occupied) })
	e.Field("pin_count", func(e *jx.Encoder) { e.Int(s.PinCount) })
	e.Field("dirty", func(e *jx.Encoder) { e.Bool(s.Dirty) })
	e.Field("referenced", func(e *jx.Encoder) { e.Bool(s.Referenced) })
	e.Field("page", func(e *jx.Encoder) {
		ident, ok := s.Page.Get()
		if !ok {
			e.Null()
			return
		}

		e.ObjStart()
		e.Field("file_id", func(e *jx.Encoder) { e.UInt64(uint64(ident.FileID)) })
		e.Field("page_id", func(e *jx.Encoder) { e.UInt64(uint64(ident.PageID)) })
		e.ObjEnd()
	})
	e.ObjEnd()
}

// EncodeFrames renders a dump as a JSON array.
func EncodeFrames(states []FrameState) []byte {
	var e jx.Encoder

	e.ArrStart()
	for _, s := range states {
		s.Encode(&e)
	}
	e.ArrEnd()

	return e.Bytes()
}
