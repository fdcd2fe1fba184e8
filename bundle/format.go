package bundle

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kjk/bstore/storage"
)

const (
	// Magic identifies a bundle file
	Magic = "BSTBNDL\x00"
	// Version is the version of the format we write
	Version uint32 = 1

	headerSize    = len(Magic) + 4 + 8
	countOffset   = len(Magic) + 4
	minRecordSize = 4 + 1 + 8
	maxKeyLen     = 64 * 1024
	unknownSize   = -1
)

var (
	// ErrCorruptBundle is returned when bundle header or framing is invalid
	ErrCorruptBundle = errors.New("corrupt bundle")

	le = binary.LittleEndian
)

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptBundle, fmt.Sprintf(format, args...))
}

func writeHeader(w io.Writer, count uint64) error {
	var hdr [headerSize]byte
	copy(hdr[:], Magic)
	le.PutUint32(hdr[len(Magic):], Version)
	le.PutUint64(hdr[countOffset:], count)
	_, err := w.Write(hdr[:])
	return err
}

func writeRecord(w io.Writer, key string, d []byte) error {
	if len(key) == 0 || len(key) > maxKeyLen {
		return fmt.Errorf("key of length %d can't be stored in a bundle", len(key))
	}
	var buf [8]byte
	le.PutUint32(buf[:4], uint32(len(key)))
	if _, err := w.Write(buf[:4]); err != nil {
		return err
	}
	if _, err := io.WriteString(w, key); err != nil {
		return err
	}
	le.PutUint64(buf[:], uint64(len(d)))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	_, err := w.Write(d)
	return err
}

// Reader reads records from a bundle
//
//	r, err := bundle.NewReader(f, size)
//	for r.Next() {
//	    rec := r.Record
//	}
//	if r.Err() != nil { ... }
type Reader struct {
	r *bufio.Reader

	Version uint32
	// Count is number of records declared in the header
	Count uint64

	// Record is available after Next(), over-written by next Next()
	Record storage.Record

	nRead uint64
	// bytes left in the input or unknownSize if size is not known
	remaining int64
	seen      map[string]bool
	err       error
	done      bool
}

// NewReader reads and validates bundle header. size is the size of
// the bundle in bytes, or -1 if not known. Knowing the size allows
// rejecting bogus lengths before allocating memory for them.
func NewReader(r io.Reader, size int64) (*Reader, error) {
	br := &Reader{
		r:         bufio.NewReader(r),
		remaining: size,
		seen:      map[string]bool{},
	}
	if size < 0 {
		br.remaining = unknownSize
	}
	var hdr [headerSize]byte
	if err := br.readFull(hdr[:], "header"); err != nil {
		return nil, err
	}
	if string(hdr[:len(Magic)]) != Magic {
		return nil, corruptf("missing magic marker")
	}
	br.Version = le.Uint32(hdr[len(Magic):])
	if br.Version != Version {
		return nil, corruptf("unsupported version %d", br.Version)
	}
	br.Count = le.Uint64(hdr[countOffset:])
	if br.remaining >= 0 && br.Count > uint64(br.remaining/minRecordSize) {
		return nil, corruptf("%d records can't fit in %d bytes", br.Count, br.remaining)
	}
	return br, nil
}

func (r *Reader) readFull(d []byte, what string) error {
	if r.remaining >= 0 && int64(len(d)) > r.remaining {
		return corruptf("truncated %s: need %d bytes, have %d", what, len(d), r.remaining)
	}
	_, err := io.ReadFull(r.r, d)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return corruptf("truncated %s", what)
	}
	if err != nil {
		return err
	}
	if r.remaining >= 0 {
		r.remaining -= int64(len(d))
	}
	return nil
}

func (r *Reader) checkLen(n uint64, what string) error {
	if r.remaining >= 0 && n > uint64(r.remaining) {
		return corruptf("%s of %d bytes exceeds remaining %d bytes", what, n, r.remaining)
	}
	return nil
}

func (r *Reader) readRecord() error {
	var buf [8]byte
	if err := r.readFull(buf[:4], "key length"); err != nil {
		return err
	}
	keyLen := uint64(le.Uint32(buf[:4]))
	if keyLen == 0 || keyLen > maxKeyLen {
		return corruptf("invalid key length %d", keyLen)
	}
	if err := r.checkLen(keyLen, "key"); err != nil {
		return err
	}
	key := make([]byte, keyLen)
	if err := r.readFull(key, "key"); err != nil {
		return err
	}
	if err := r.readFull(buf[:], "value length"); err != nil {
		return err
	}
	valLen := le.Uint64(buf[:])
	if err := r.checkLen(valLen, "value"); err != nil {
		return err
	}
	if r.remaining < 0 && valLen > 1<<40 {
		return corruptf("value length %d is too large", valLen)
	}
	val := make([]byte, valLen)
	if err := r.readFull(val, "value"); err != nil {
		return err
	}

	k := string(key)
	if _, err := storage.KeyToFileName(k); err != nil {
		return corruptf("record %d: %s", r.nRead, err)
	}
	if r.seen[k] {
		return corruptf("duplicate key '%s'", k)
	}
	r.seen[k] = true
	r.Record = storage.Record{Key: k, Data: val}
	return nil
}

// after the last record there must be nothing
func (r *Reader) checkTrailing() error {
	if r.remaining > 0 {
		return corruptf("%d bytes of trailing data", r.remaining)
	}
	_, err := r.r.ReadByte()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	return corruptf("trailing data after %d records", r.Count)
}

// Next reads the next record. Returns false when there are no more
// records or there was an error (check Err())
func (r *Reader) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	if r.nRead == r.Count {
		r.done = true
		r.err = r.checkTrailing()
		return false
	}
	if r.err = r.readRecord(); r.err != nil {
		return false
	}
	r.nRead++
	return true
}

// Err returns the first error encountered by Next()
func (r *Reader) Err() error {
	return r.err
}
