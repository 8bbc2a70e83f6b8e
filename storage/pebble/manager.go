package pebblestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/slotpool/storage"
)

// Manager implements storage.Manager. It is safe for concurrent use.
type Manager struct {
	db        *pebble.DB
	writeSync bool
	chunk     int64
	metrics   MetricsHook
	log       *zap.Logger

	mu     sync.Mutex
	open   map[string]*file // stores with live handles
	closed bool
}

var _ storage.Manager = (*Manager)(nil)

func metaKey(name string) []byte { return []byte("m/" + name) }

func chunkPrefix(name string) []byte { return []byte("d/" + name + "\x00") }

// chunkEnd is the exclusive upper bound of name's chunk keys.
func chunkEnd(name string) []byte { return []byte("d/" + name + "\x01") }

func chunkKey(name string, idx int64) []byte {
	k := chunkPrefix(name)
	return binary.BigEndian.AppendUint64(k, uint64(idx))
}

func validName(name string) error {
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("%w: %q", storage.ErrInvalidName, name)
	}
	return nil
}

func (m *Manager) writeOpts() *pebble.WriteOptions {
	if m.writeSync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Exists reports whether a store called name has been created.
func (m *Manager) Exists(name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, storage.ErrClosed
	}
	_, err := m.readSize(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Create makes an empty store. It fails with storage.ErrExist if name is taken.
func (m *Manager) Create(name string) (storage.Store, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, storage.ErrClosed
	}
	if _, err := m.readSize(name); err == nil {
		return nil, fmt.Errorf("%w: %q", storage.ErrExist, name)
	} else if !errors.Is(err, storage.ErrNotExist) {
		return nil, err
	}

	var size [8]byte
	if err := m.db.Set(metaKey(name), size[:], m.writeOpts()); err != nil {
		return nil, err
	}
	m.log.Debug("store created", zap.String("name", name))
	return m.attach(name, 0), nil
}

// Open returns a new handle on an existing store.
func (m *Manager) Open(name string) (storage.Store, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, storage.ErrClosed
	}
	if f, ok := m.open[name]; ok {
		f.refs++
		return &Store{f: f}, nil
	}
	size, err := m.readSize(name)
	if err != nil {
		return nil, err
	}
	return m.attach(name, size), nil
}

// Remove deletes the store's data. Handles still open on it fail with
// storage.ErrClosed afterwards.
func (m *Manager) Remove(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return storage.ErrClosed
	}

	b := m.db.NewBatch()
	defer b.Close()
	if err := b.Delete(metaKey(name), nil); err != nil {
		return err
	}
	if err := b.DeleteRange(chunkPrefix(name), chunkEnd(name), nil); err != nil {
		return err
	}
	if err := m.commit(b); err != nil {
		return err
	}

	if f, ok := m.open[name]; ok {
		f.mu.Lock()
		f.removed = true
		f.mu.Unlock()
		delete(m.open, name)
	}
	m.log.Debug("store removed", zap.String("name", name))
	return nil
}

// Close closes the database. Open handles become unusable.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, f := range m.open {
		f.mu.Lock()
		f.removed = true
		f.mu.Unlock()
	}
	m.open = nil
	return m.db.Close()
}

// attach registers a file for name and returns its first handle. mu held.
func (m *Manager) attach(name string, size int64) *Store {
	f := &file{m: m, name: name, size: size, refs: 1}
	m.open[name] = f
	return &Store{f: f}
}

// release drops one handle reference on f.
func (m *Manager) release(f *file) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.refs--
	if f.refs == 0 && m.open[f.name] == f {
		delete(m.open, f.name)
	}
}

// readSize loads the size record; storage.ErrNotExist if absent.
func (m *Manager) readSize(name string) (int64, error) {
	val, closer, err := m.db.Get(metaKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, fmt.Errorf("%w: %q", storage.ErrNotExist, name)
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("pebblestore: corrupt size record for %q", name)
	}
	return int64(binary.BigEndian.Uint64(val)), nil
}
