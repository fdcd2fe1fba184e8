package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/kjk/bstore/atomicfile"
	"github.com/kjk/bstore/codec"
)

// how many directory entries we read at a time in Keys()
const readDirBatch = 256

// Options configures a Storage. nil Options are the same as zero Options.
type Options struct {
	// Codec serializes values. codec.Default if nil
	Codec codec.Codec
	// Logf, if set, is called for notable events (e.g. creating the directory)
	Logf func(format string, args ...any)
}

// Storage is a handle to a directory with records.
// Dropping it doesn't remove anything from disk.
type Storage struct {
	dir   string
	codec codec.Codec
	logf  func(format string, args ...any)
}

// Record is a key with its serialized value
type Record struct {
	Key  string
	Data []byte
}

// Create opens the storage in dir, creating the directory (and its parents)
// if it doesn't exist
func Create(dir string, opts *Options) (*Storage, error) {
	if opts == nil {
		opts = &Options{}
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		dir:   absDir,
		codec: opts.Codec,
		logf:  opts.Logf,
	}
	if s.codec == nil {
		s.codec = codec.Default
	}

	st, err := os.Stat(absDir)
	if err == nil {
		if !st.IsDir() {
			return nil, &fs.PathError{Op: "create", Path: absDir, Err: errNotDir}
		}
		return s, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err = os.MkdirAll(absDir, 0755); err != nil {
		return nil, err
	}
	s.log("storage: created directory '%s'\n", absDir)
	return s, nil
}

func (s *Storage) log(format string, args ...any) {
	if s.logf != nil {
		s.logf(format, args...)
	}
}

// Dir returns absolute path of storage directory
func (s *Storage) Dir() string {
	return s.dir
}

// Codec returns the codec used to serialize values
func (s *Storage) Codec() codec.Codec {
	return s.codec
}

// Path returns path of the file for key
func (s *Storage) Path(key string) (string, error) {
	name, err := KeyToFileName(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// Set serializes v and atomically replaces the record for key
func (s *Storage) Set(key string, v any) error {
	// validate key before doing the work of encoding
	if _, err := KeyToFileName(key); err != nil {
		return err
	}
	d, err := s.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: key '%s': %w", ErrSerialize, key, err)
	}
	return s.SetRaw(key, d)
}

// SetRaw atomically replaces the record for key with already serialized d
func (s *Storage) SetRaw(key string, d []byte) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err = atomicfile.WriteFile(path, d); err != nil {
		return fmt.Errorf("writing key '%s': %w", key, err)
	}
	return nil
}

// GetRaw returns serialized value of a record.
// Returns false (and no error) if there's no record for key.
func (s *Storage) GetRaw(key string) ([]byte, bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, false, err
	}
	d, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading key '%s': %w", key, err)
	}
	return d, true, nil
}

// Unmarshal decodes d, the stored value of key, into v
func (s *Storage) Unmarshal(key string, d []byte, v any) error {
	if err := s.codec.Unmarshal(d, v); err != nil {
		return fmt.Errorf("%w: key '%s' as %T: %w", ErrDeserialize, key, v, err)
	}
	return nil
}

// Has returns true if there's a record for key
func (s *Storage) Has(key string) (bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return false, err
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return st.Mode().IsRegular(), nil
}

// Remove deletes the record for key. Removing a missing key is not an error.
func (s *Storage) Remove(key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing key '%s': %w", key, err)
	}
	return nil
}

// Clear removes all records. Files that are not records (foreign files,
// in-flight temporary files) are left alone.
func (s *Storage) Clear() error {
	keys, err := s.KeyList()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err = s.Remove(key); err != nil {
			return err
		}
	}
	s.log("storage: cleared %d records in '%s'\n", len(keys), s.dir)
	return nil
}

func recordKey(e fs.DirEntry) (string, bool) {
	if !e.Type().IsRegular() || atomicfile.IsTempName(e.Name()) {
		return "", false
	}
	return FileNameToKey(e.Name())
}

// Keys returns keys of all records, reading the directory lazily.
// The order is the order in which the file system returns directory
// entries. If reading the directory fails, the error is yielded
// and iteration stops.
func (s *Storage) Keys() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		dir, err := os.Open(s.dir)
		if err != nil {
			yield("", err)
			return
		}
		defer dir.Close()
		for {
			entries, err := dir.ReadDir(readDirBatch)
			for _, e := range entries {
				key, ok := recordKey(e)
				if !ok {
					continue
				}
				if !yield(key, nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
		}
	}
}

// KeyList returns sorted keys of all records
func (s *Storage) KeyList() ([]string, error) {
	var keys []string
	for key, err := range s.Keys() {
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

// Len returns number of records
func (s *Storage) Len() (int, error) {
	n := 0
	for _, err := range s.Keys() {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// Records iterates over records in Keys() order, reading serialized values.
// Records removed after their key was listed are skipped.
func (s *Storage) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for key, err := range s.Keys() {
			if err != nil {
				yield(Record{}, err)
				return
			}
			d, ok, err := s.GetRaw(key)
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(Record{Key: key, Data: d}, nil) {
				return
			}
		}
	}
}
