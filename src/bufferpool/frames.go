package bufferpool

import (
	"github.com/Blackdeer1524/bufmgr/src/pkg/assert"
	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
	"github.com/Blackdeer1524/bufmgr/src/pkg/optional"
	"github.com/Blackdeer1524/bufmgr/src/storage/page"
)

type FrameID uint64

// frame is the metadata of one pool slot. A free frame has no owner, no
// pins and is clean.
type frame struct {
	occupied bool

	file  File
	owner optional.Optional[common.PageIdentity]

	pinCount   int
	dirty      bool
	referenced bool

	// bumped every time the frame changes hands; handles compare against it
	generation uint64
}

// frameTable keeps frame metadata and the page buffers side by side. Each
// buffer belongs to its slot for the lifetime of the pool.
type frameTable struct {
	frames []frame
	pages  []page.Page
}

func newFrameTable(poolSize uint64) frameTable {
	return frameTable{
		frames: make([]frame, poolSize),
		pages:  make([]page.Page, poolSize),
	}
}

func (t *frameTable) size() int {
	return len(t.frames)
}

func (t *frameTable) get(id FrameID) *frame {
	return &t.frames[id]
}

func (t *frameTable) page(id FrameID) *page.Page {
	return &t.pages[id]
}

func (t *frameTable) clear(id FrameID) {
	f := &t.frames[id]

	f.occupied = false
	f.file = nil
	f.owner.Clear()
	f.pinCount = 0
	f.dirty = false
	f.referenced = false
	f.generation++
}

func (t *frameTable) initialize(id FrameID, file File, ident common.PageIdentity) {
	f := &t.frames[id]
	assert.Assert(!f.occupied, "frame %d is already occupied by %v", id, f.owner)

	f.occupied = true
	f.file = file
	f.owner.Emplace(ident)
	f.pinCount = 1
	f.dirty = false
	f.referenced = true
	f.generation++
}
