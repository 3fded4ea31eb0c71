package disk

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
)

var (
	ErrFileAlreadyOpen = errors.New("file is already open")
	ErrManagerClosed   = errors.New("disk manager is closed")
)

// Manager opens page files under a base directory and hands out file
// identifiers for them.
type Manager struct {
	basePath string
	fs       afero.Fs

	mu         sync.Mutex
	nextFileID common.FileID
	files      map[string]*File
	closed     bool
}

func New(basePath string, fs afero.Fs) *Manager {
	return &Manager{
		basePath:   basePath,
		fs:         fs,
		nextFileID: 1,
		files:      make(map[string]*File),
	}
}

// Open opens (creating it if needed) the page file with the given name.
func (m *Manager) Open(name string) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	if _, ok := m.files[name]; ok {
		return nil, errors.Wrapf(ErrFileAlreadyOpen, "open %s", name)
	}

	if err := m.fs.MkdirAll(m.basePath, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create base directory %s", m.basePath)
	}

	path := filepath.Join(m.basePath, filepath.Clean(name))

	f, err := m.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open page file %s", path)
	}

	file, err := newFile(m.nextFileID, path, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	m.nextFileID++
	m.files[name] = file

	return file, nil
}

// Close syncs and closes every file opened through the manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	for name, f := range m.files {
		err = multierr.Append(err, f.Sync())
		err = multierr.Append(err, f.Close())
		delete(m.files, name)
	}

	return err
}
