package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Some references:
// - https://www.slideshare.net/nan1nan1/eat-my-data
// - https://lwn.net/Articles/457667/

const (
	tempPrefix = ".tmp-"
	// keep temp names well under the 255 byte limit of most filesystems
	maxTempBase = 64
)

var (
	// ErrCancelled is returned by calls subsequent to Cancel()
	ErrCancelled = errors.New("cancelled")

	_ io.WriteCloser = &File{}
	_ io.WriterAt    = &File{}
)

// File is written to a temporary file and moved to its destination
// on a successful Close()
type File struct {
	dstPath string
	dir     string
	tmp     *os.File
	tmpPath string
	// first error encountered, sticky
	err error
}

// IsTempName returns true if name (not a path) looks like a temporary file
// created by New
func IsTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

// New creates a temporary file in the directory of path.
// The directory must exist: we want to fail before writing any data
// rather than at rename time.
func New(path string) (*File, error) {
	dir, name := filepath.Split(path)
	if name == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	base := name
	if len(base) > maxTempBase {
		base = base[:maxTempBase]
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+base+"-*")
	if err != nil {
		return nil, err
	}
	return &File{
		dstPath: path,
		dir:     dir,
		tmp:     tmp,
		tmpPath: tmp.Name(),
	}, nil
}

// TempPath returns the path of the temporary file
func (f *File) TempPath() string {
	return f.tmpPath
}

func (f *File) fail(err error) error {
	if err == nil {
		return nil
	}
	if f.err == nil {
		f.err = err
	}
	_ = f.Close()
	return err
}

func (f *File) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmp.Write(d)
	return n, f.fail(err)
}

// WriteAt over-writes already written data e.g. to patch a header
func (f *File) WriteAt(d []byte, off int64) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmp.WriteAt(d, off)
	return n, f.fail(err)
}

func (f *File) Sync() error {
	if f.err != nil {
		return f.err
	}
	return f.fail(f.tmp.Sync())
}

func (f *File) closed() bool {
	return f.tmp == nil
}

// Cancel removes the temporary file if Close() wasn't called yet.
// The destination is not touched. Meant to be deferred: after a
// successful Close() it's a no-op.
func (f *File) Cancel() {
	if f == nil || f.closed() {
		return
	}
	f.err = ErrCancelled
	_ = f.Close()
}

// Close syncs and closes the temporary file and renames it over
// the destination. Can be called multiple times, returns the first error.
func (f *File) Close() error {
	if f.closed() {
		return f.err
	}
	tmp := f.tmp
	f.tmp = nil

	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := tmp.Sync()
	errClose := tmp.Close()

	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(f.tmpPath)
		}
	}()

	if f.err != nil {
		return f.err
	}
	err := errSync
	if err == nil {
		err = errClose
	}
	if err == nil {
		err = os.Rename(f.tmpPath, f.dstPath)
		renamed = err == nil
	}
	if renamed {
		syncDir(f.dir)
	}
	f.err = err
	return err
}

// best effort: makes the rename itself durable
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// WriteFile atomically replaces the content of path with d
func WriteFile(path string, d []byte) error {
	f, err := New(path)
	if err != nil {
		return err
	}
	defer f.Cancel()
	if _, err = f.Write(d); err != nil {
		return err
	}
	return f.Close()
}

// Copy atomically writes everything read from r to path
func Copy(path string, r io.Reader) (int64, error) {
	f, err := New(path)
	if err != nil {
		return 0, err
	}
	defer f.Cancel()
	n, err := io.Copy(f, r)
	if err != nil {
		return n, err
	}
	return n, f.Close()
}
