// Package storage defines the byte-sequence store and its lifecycle manager:
// the collaborators a buffer pool persists evicted blocks to and a journal
// appends batches to.
package storage

import "errors"

var (
	// ErrExist is returned by Manager.Create when the name is taken.
	ErrExist = errors.New("storage: already exists")
	// ErrNotExist is returned by Manager.Open for an unknown name.
	ErrNotExist = errors.New("storage: does not exist")
	// ErrClosed is returned by operations on a closed Store or Manager.
	ErrClosed = errors.New("storage: closed")
	// ErrInvalidName rejects names a Manager cannot encode.
	ErrInvalidName = errors.New("storage: invalid name")
)

// Store is a named, growable sequence of bytes.
//
// ReadAt follows io.ReaderAt: it returns io.EOF when fewer than len(p) bytes
// exist at off. WriteAt may extend the store; a gap between the old end and
// off reads back as zeros. Implementations are safe for concurrent use.
type Store interface {
	// Append writes p at the current end of the store.
	Append(p []byte) error
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	// Size returns the current length in bytes.
	Size() int64
	// Sync makes all completed writes durable.
	Sync() error
	Close() error
}

// Manager creates, opens and removes stores by name.
type Manager interface {
	Exists(name string) (bool, error)
	// Create makes an empty store; ErrExist if name is taken.
	Create(name string) (Store, error)
	// Open returns an existing store; ErrNotExist if there is none.
	Open(name string) (Store, error)
	// Remove deletes the store. Removing a missing store is not an error.
	Remove(name string) error
}

// OpenOrCreate opens name, creating it first if it does not exist.
func OpenOrCreate(m Manager, name string) (Store, error) {
	s, err := m.Open(name)
	if errors.Is(err, ErrNotExist) {
		s, err = m.Create(name)
		if errors.Is(err, ErrExist) {
			return m.Open(name)
		}
	}
	return s, err
}
