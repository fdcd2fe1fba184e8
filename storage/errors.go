package storage

import (
	"errors"
	"io/fs"
	"os"
)

var (
	// ErrInvalidKey is returned for keys that can't be mapped to a file name
	ErrInvalidKey = errors.New("invalid key")
	// ErrSerialize is returned when codec failed to encode a value
	ErrSerialize = errors.New("serialization failed")
	// ErrDeserialize is returned when stored bytes can't be decoded
	// as the requested type
	ErrDeserialize = errors.New("deserialization failed")

	errNotDir = errors.New("not a directory")
)

// IsIOError returns true if err is a file system error
// (permissions, missing path, disk full etc.)
func IsIOError(err error) bool {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var sysErr *os.SyscallError
	return errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &sysErr)
}
