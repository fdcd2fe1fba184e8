package storage

import (
	"fmt"
	"strings"
)

const (
	recordExt = ".rec"
	// max file name length on most file systems
	maxFileNameLen = 255
	hexDigits      = "0123456789ABCDEF"
)

// names that Windows reserves in every directory, regardless of extension
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com0": true, "com1": true, "com2": true, "com3": true, "com4": true,
	"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
	"lpt0": true, "lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
	"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// upper-case letters are escaped so that keys differing only in case
// don't collide on case-insensitive file systems
func isSafeByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b == '_' || b == '-'
}

func escapeByte(sb *strings.Builder, b byte) {
	sb.WriteByte('%')
	sb.WriteByte(hexDigits[b>>4])
	sb.WriteByte(hexDigits[b&0xf])
}

func encodeKey(key string) string {
	var sb strings.Builder
	sb.Grow(len(key) + len(recordExt))
	for i := 0; i < len(key); i++ {
		b := key[i]
		if isSafeByte(b) {
			sb.WriteByte(b)
		} else {
			escapeByte(&sb, b)
		}
	}
	s := sb.String()
	if reservedNames[s] {
		sb.Reset()
		escapeByte(&sb, key[0])
		sb.WriteString(s[1:])
		s = sb.String()
	}
	return s + recordExt
}

// KeyToFileName returns the name of the file that stores a record for key.
// The mapping is deterministic and reversible (see FileNameToKey).
func KeyToFileName(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	name := encodeKey(key)
	if len(name) > maxFileNameLen {
		return "", fmt.Errorf("%w: key of length %d encodes to a file name longer than %d bytes", ErrInvalidKey, len(key), maxFileNameLen)
	}
	return name, nil
}

func unhex(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

// FileNameToKey reverses KeyToFileName. Returns false if name is not
// a record file name i.e. it's not exactly what KeyToFileName would
// produce for some key.
func FileNameToKey(name string) (string, bool) {
	stem, ok := strings.CutSuffix(name, recordExt)
	if !ok || stem == "" {
		return "", false
	}
	key := make([]byte, 0, len(stem))
	for i := 0; i < len(stem); i++ {
		b := stem[i]
		if b == '%' {
			if i+2 >= len(stem) {
				return "", false
			}
			hi, ok1 := unhex(stem[i+1])
			lo, ok2 := unhex(stem[i+2])
			if !ok1 || !ok2 {
				return "", false
			}
			key = append(key, hi<<4|lo)
			i += 2
			continue
		}
		if !isSafeByte(b) {
			return "", false
		}
		key = append(key, b)
	}
	// reject non-canonical names like "%61.rec" for "a" so that
	// every key has exactly one file
	if encodeKey(string(key)) != name {
		return "", false
	}
	return string(key), true
}
