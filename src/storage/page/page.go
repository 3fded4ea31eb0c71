package page

import (
	"github.com/Blackdeer1524/bufmgr/src/pkg/assert"
)

const Size = 1 << 12

// Page is a fixed-size block of page contents. The buffer pool imposes no
// structure on it.
type Page struct {
	data [Size]byte
}

func New() *Page {
	return &Page{}
}

func (p *Page) GetData() []byte {
	return p.data[:]
}

func (p *Page) SetData(d []byte) {
	assert.Assert(len(d) <= Size, "page data is too large: %d bytes", len(d))

	n := copy(p.data[:], d)
	clear(p.data[n:])
}

func (p *Page) Reset() {
	clear(p.data[:])
}
