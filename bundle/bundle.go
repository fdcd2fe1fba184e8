package bundle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kjk/bstore/atomicfile"
	"github.com/kjk/bstore/storage"
)

// UnpackedExt is the extension of a directory created by UnpackDefault
const UnpackedExt = ".unpacked"

// ErrTargetNotEmpty is returned when unpacking into a directory that
// already has files in it
var ErrTargetNotEmpty = errors.New("target directory is not empty")

// Pack writes all records of s into a bundle file at path.
// The file is written atomically: if Pack fails, path is untouched.
// Returns number of records written.
func Pack(s *storage.Storage, path string) (int, error) {
	f, err := atomicfile.New(path)
	if err != nil {
		return 0, err
	}
	defer f.Cancel()

	w := bufio.NewWriter(f)
	// record count is not known until we're done (records can
	// disappear while we're reading them) so we patch it at the end
	if err = writeHeader(w, 0); err != nil {
		return 0, err
	}
	n := 0
	for rec, err := range s.Records() {
		if err != nil {
			return 0, err
		}
		if err = writeRecord(w, rec.Key, rec.Data); err != nil {
			return 0, fmt.Errorf("packing key '%s': %w", rec.Key, err)
		}
		n++
	}
	if err = w.Flush(); err != nil {
		return 0, err
	}
	var count [8]byte
	le.PutUint64(count[:], uint64(n))
	if _, err = f.WriteAt(count[:], int64(countOffset)); err != nil {
		return 0, err
	}
	if err = f.Close(); err != nil {
		return 0, err
	}
	return n, nil
}

// ReadAll reads all records from a bundle file
func ReadAll(path string) ([]storage.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f, st.Size())
	if err != nil {
		return nil, err
	}
	var res []storage.Record
	for r.Next() {
		res = append(res, r.Record)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return res, nil
}

// dir must not exist or be empty. Returns true if it exists.
func checkTarget(dir string) (bool, error) {
	st, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !st.IsDir() {
		return true, &fs.PathError{Op: "unpack", Path: dir, Err: errors.New("not a directory")}
	}
	d, err := os.Open(dir)
	if err != nil {
		return true, err
	}
	defer d.Close()
	_, err = d.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	return true, fmt.Errorf("%w: '%s'", ErrTargetNotEmpty, dir)
}

// rename is os.Rename, replaceable in tests
var rename = os.Rename

// moveDir renames staging to dir. os.Rename doesn't replace a directory
// so an existing empty dir is removed first and re-created if the rename
// fails.
func moveDir(staging string, dir string, exists bool) error {
	if !exists {
		return rename(staging, dir)
	}
	// fails if someone put files in it in the meantime
	if err := os.Remove(dir); err != nil {
		return err
	}
	err := rename(staging, dir)
	if err != nil {
		_ = os.Mkdir(dir, 0755)
	}
	return err
}

// Unpack creates a storage in dir with records from bundle file src.
// dir must not exist or be an empty directory.
//
// Records are first written to a staging directory next to dir which is
// renamed to dir only after the whole bundle was read and validated.
// On error nothing is left behind.
func Unpack(src string, dir string, opts *storage.Options) (*storage.Storage, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	// fail fast on a bad header, before creating any directories
	r, err := NewReader(f, st.Size())
	if err != nil {
		return nil, err
	}

	exists, err := checkTarget(dir)
	if err != nil {
		return nil, err
	}
	parent := filepath.Dir(dir)
	if err = os.MkdirAll(parent, 0755); err != nil {
		return nil, err
	}
	staging := filepath.Join(parent, "."+filepath.Base(dir)+".unpack-"+uuid.NewString())
	if err = os.Mkdir(staging, 0755); err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = os.RemoveAll(staging)
		}
	}()

	s, err := storage.Create(staging, opts)
	if err != nil {
		return nil, err
	}
	for r.Next() {
		if err = s.SetRaw(r.Record.Key, r.Record.Data); err != nil {
			return nil, err
		}
	}
	if err = r.Err(); err != nil {
		return nil, err
	}
	if err = moveDir(staging, dir, exists); err != nil {
		return nil, err
	}
	ok = true
	if opts != nil && opts.Logf != nil {
		opts.Logf("bundle: unpacked %d records from '%s' into '%s'\n", r.Count, src, dir)
	}
	return storage.Create(dir, opts)
}

// UnpackDefault unpacks src into a directory named like src with
// extension replaced by ".unpacked"
func UnpackDefault(src string, opts *storage.Options) (*storage.Storage, error) {
	return Unpack(src, DefaultUnpackDir(src), opts)
}

// DefaultUnpackDir returns directory used by UnpackDefault
func DefaultUnpackDir(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + UnpackedExt
}
