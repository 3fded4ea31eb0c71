package bufferpool

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
)

// directory maps a resident page to the frame holding it. It holds exactly
// the keys of occupied frames.
type directory struct {
	entries map[common.PageIdentity]FrameID
}

func newDirectory(poolSize uint64) directory {
	return directory{
		entries: make(map[common.PageIdentity]FrameID, poolSize+poolSize/5+1),
	}
}

func (d *directory) lookup(ident common.PageIdentity) (FrameID, bool) {
	frameID, ok := d.entries[ident]
	return frameID, ok
}

func (d *directory) insert(ident common.PageIdentity, frameID FrameID) error {
	if existing, ok := d.entries[ident]; ok {
		return errors.Wrapf(
			ErrDuplicateKey,
			"page %s is already in frame %d (inserting frame %d)",
			ident,
			existing,
			frameID,
		)
	}

	d.entries[ident] = frameID

	return nil
}

func (d *directory) remove(ident common.PageIdentity) error {
	if _, ok := d.entries[ident]; !ok {
		return errors.Wrapf(ErrKeyNotFound, "remove page %s", ident)
	}

	delete(d.entries, ident)

	return nil
}

func (d *directory) len() int {
	return len(d.entries)
}
