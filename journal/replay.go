package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/IvanBrykalov/slotpool/internal/util"
	"github.com/IvanBrykalov/slotpool/storage"
)

// Replay calls fn for every record in store, in append order. The slice
// passed to fn is reused between calls. An error from fn stops the walk and
// is returned unchanged.
func Replay(store storage.Store, fn func(rec []byte) error) error {
	size := store.Size()
	r := bufio.NewReaderSize(io.NewSectionReader(store, 0, size), 64<<10)

	var (
		hdr [headerSize]byte
		buf []byte
		off int64
	)
	for off < size {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return corrupt(off, err)
		}
		n := int64(binary.LittleEndian.Uint32(hdr[0:4]))
		sum := binary.LittleEndian.Uint32(hdr[4:8])
		if n > size-off-headerSize {
			return fmt.Errorf("%w at offset %d: length %d past end", ErrCorrupt, off, n)
		}
		if int64(cap(buf)) < n {
			buf = make([]byte, n)
		}
		buf = buf[:n]
		if _, err := io.ReadFull(r, buf); err != nil {
			return corrupt(off, err)
		}
		if util.Checksum32(buf) != sum {
			return fmt.Errorf("%w at offset %d: checksum mismatch", ErrCorrupt, off)
		}
		if err := fn(buf); err != nil {
			return err
		}
		off += headerSize + n
	}
	return nil
}

func corrupt(off int64, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w at offset %d: truncated", ErrCorrupt, off)
	}
	return fmt.Errorf("journal: read at offset %d: %w", off, err)
}
