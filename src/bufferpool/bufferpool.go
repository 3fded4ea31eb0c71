package bufferpool

import (
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/bufmgr/src"
	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
	"github.com/Blackdeer1524/bufmgr/src/storage/page"
)

// File is the storage a page comes from. The pool reads pages into frames,
// writes dirty frames back and forwards page allocation and disposal.
//
// Pages are keyed by ID, so files sharing a pool must have distinct IDs.
// Using a second file under an ID that already owns resident pages fails
// with ErrFileIDConflict.
type File interface {
	ID() common.FileID
	ReadPage(pageID common.PageID, p *page.Page) error
	WritePage(pageID common.PageID, p *page.Page) error
	AllocatePage() (common.PageID, error)
	DisposePage(pageID common.PageID) error
}

// Manager caches pages of any number of files in a fixed set of frames.
//
// A page stays pinned from Fetch/Allocate until the matching Release and is
// never evicted while pinned. All state, clock hand included, belongs to the
// Manager and is guarded by a single mutex.
type Manager struct {
	poolSize uint64

	mu        sync.Mutex
	frames    frameTable
	dir       directory
	clockHand uint64
	closed    bool

	log     src.Logger
	metrics *metrics
}

type options struct {
	log   src.Logger
	meter metric.Meter
}

type Option func(*options)

func WithLogger(log src.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// New creates a pool of poolSize frames.
func New(poolSize uint64, opts ...Option) (*Manager, error) {
	if poolSize == 0 {
		return nil, ErrInvalidPoolSize
	}

	o := options{
		log:   zap.NewNop().Sugar(),
		meter: otel.Meter("github.com/Blackdeer1524/bufmgr/src/bufferpool"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	m, err := newMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	return &Manager{
		poolSize: poolSize,
		frames:   newFrameTable(poolSize),
		dir:      newDirectory(poolSize),
		// the first sweep starts at frame 0
		clockHand: poolSize - 1,
		log:       o.log,
		metrics:   m,
	}, nil
}

func (m *Manager) PoolSize() uint64 {
	return m.poolSize
}

// Fetch pins the page and returns a handle to its frame, reading the page
// from file if it is not resident.
func (m *Manager) Fetch(file File, pageID common.PageID) (*PageHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrPoolClosed
	}

	ident := common.NewPageIdentity(file.ID(), pageID)

	if frameID, ok := m.dir.lookup(ident); ok {
		f := m.frames.get(frameID)
		if err := checkOwner(f, file, ident); err != nil {
			return nil, err
		}

		f.referenced = true
		f.pinCount++
		m.metrics.hit()

		return m.handleAssumeLocked(frameID), nil
	}

	m.metrics.miss()

	frameID, err := m.allocateFrame()
	if err != nil {
		return nil, errors.Wrapf(err, "fetch page %s", ident)
	}

	// the frame is free here, so a failure below leaves nothing to undo
	if err := file.ReadPage(pageID, m.frames.page(frameID)); err != nil {
		return nil, &IOError{Op: OpRead, Page: ident, Err: err}
	}

	if err := m.dir.insert(ident, frameID); err != nil {
		return nil, err
	}

	m.frames.initialize(frameID, file, ident)

	return m.handleAssumeLocked(frameID), nil
}

// Release drops one pin of the page. A dirty release marks the frame dirty
// until it is written back; a clean release never clears the flag.
func (m *Manager) Release(file File, pageID common.PageID, dirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrPoolClosed
	}

	ident := common.NewPageIdentity(file.ID(), pageID)

	frameID, ok := m.dir.lookup(ident)
	if !ok {
		return errors.Wrapf(ErrPageNotFound, "release page %s", ident)
	}

	f := m.frames.get(frameID)
	if err := checkOwner(f, file, ident); err != nil {
		return err
	}

	if f.pinCount == 0 {
		return errors.Wrapf(ErrPageNotPinned, "release page %s", ident)
	}

	if dirty {
		f.dirty = true
	}
	f.pinCount--

	return nil
}

// Allocate asks file for a new page and places it, zeroed and pinned, in a
// frame. If anything fails after the file handed out the page number, that
// number is leaked at the file level.
func (m *Manager) Allocate(file File) (common.PageID, *PageHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return common.InvalidPageID, nil, ErrPoolClosed
	}

	pageID, err := file.AllocatePage()
	if err != nil {
		return common.InvalidPageID, nil, &IOError{
			Op:   OpAllocate,
			Page: common.NewPageIdentity(file.ID(), common.InvalidPageID),
			Err:  err,
		}
	}

	ident := common.NewPageIdentity(file.ID(), pageID)

	frameID, err := m.allocateFrame()
	if err != nil {
		m.logLeak(ident, err)
		return common.InvalidPageID, nil, errors.Wrapf(err, "allocate page %s", ident)
	}

	m.frames.page(frameID).Reset()

	if err := m.dir.insert(ident, frameID); err != nil {
		m.logLeak(ident, err)
		return common.InvalidPageID, nil, err
	}

	m.frames.initialize(frameID, file, ident)

	return pageID, m.handleAssumeLocked(frameID), nil
}

func checkOwner(f *frame, file File, ident common.PageIdentity) error {
	if f.file != file {
		return errors.Wrapf(ErrFileIDConflict, "page %s", ident)
	}

	return nil
}

func (m *Manager) logLeak(ident common.PageIdentity, err error) {
	m.log.Warnw("allocated page number is leaked", "page", ident.String(), zap.Error(err))
}

// Dispose drops the page from the pool and gives its number back to file.
//
// No pin check is made: disposing a pinned page invalidates every handle
// to it, and its contents are discarded without a write back.
func (m *Manager) Dispose(file File, pageID common.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrPoolClosed
	}

	ident := common.NewPageIdentity(file.ID(), pageID)

	if frameID, ok := m.dir.lookup(ident); ok {
		f := m.frames.get(frameID)
		if err := checkOwner(f, file, ident); err != nil {
			return err
		}

		if pins := f.pinCount; pins > 0 {
			m.log.Warnw("disposing a pinned page", "page", ident.String(), "pins", pins)
		}

		m.frames.clear(frameID)
		if err := m.dir.remove(ident); err != nil {
			return err
		}
	}

	if err := file.DisposePage(pageID); err != nil {
		return &IOError{Op: OpDispose, Page: ident, Err: err}
	}

	return nil
}

// Flush writes back every dirty page of file and evicts all its pages.
//
// The scan stops at the first pinned page with ErrPagePinned, at the first
// failed write, or at a free frame still tagged with the file
// (ErrBadState). Frames handled before the stop stay flushed.
func (m *Manager) Flush(file File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrPoolClosed
	}

	fileID := file.ID()

	for i := range m.frames.size() {
		frameID := FrameID(i) //nolint:gosec
		f := m.frames.get(frameID)

		ident, tagged := f.owner.Get()
		if !tagged || ident.FileID != fileID {
			continue
		}

		if !f.occupied {
			return errors.Wrapf(ErrBadState, "frame %d (page %s)", frameID, ident)
		}

		if err := checkOwner(f, file, ident); err != nil {
			return err
		}

		if f.pinCount > 0 {
			return errors.Wrapf(ErrPagePinned, "flush page %s", ident)
		}

		if f.dirty {
			if err := f.file.WritePage(ident.PageID, m.frames.page(frameID)); err != nil {
				return &IOError{Op: OpWrite, Page: ident, Err: err}
			}

			f.dirty = false
			m.metrics.writeBack()
		}

		if err := m.dir.remove(ident); err != nil {
			return err
		}

		m.frames.clear(frameID)
	}

	return nil
}

// Close writes back all dirty pages and releases the frames. Write
// failures do not stop the teardown; they are logged and returned
// together.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	for i := range m.frames.size() {
		frameID := FrameID(i) //nolint:gosec
		f := m.frames.get(frameID)
		if !f.occupied || !f.dirty {
			continue
		}

		ident := f.owner.Unwrap()

		werr := f.file.WritePage(ident.PageID, m.frames.page(frameID))
		if werr != nil {
			m.log.Errorw(
				"failed to write back page on close",
				"page", ident.String(),
				zap.Error(werr),
			)

			err = multierr.Append(err, &IOError{Op: OpWrite, Page: ident, Err: werr})

			continue
		}

		f.dirty = false
		m.metrics.writeBack()
	}

	m.frames = frameTable{}
	m.dir = directory{}

	return err
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.metrics.stats
}
