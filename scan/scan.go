// Package scan finds records in a storage.Storage by looking at their values.
//
// There is no index: every call reads and tries to decode every record.
// A store can hold values of different types under different keys, so records
// that can't be decoded as the requested type are skipped, not reported as
// errors. Whether a value of one type decodes as another depends on the codec
// (gob and json are strict about field names, see package codec) so it's best
// to scan for struct types with distinct field names.
package scan

import (
	"github.com/kjk/bstore/storage"
)

// Match is a record whose value matched a predicate
type Match[T any] struct {
	Key   string
	Value T
}

// Each calls fn for every record that decodes as T, in the order of
// s.Keys(). Stops when fn returns false. Only errors reading the storage
// are returned.
func Each[T any](s *storage.Storage, fn func(key string, v T) bool) error {
	for rec, err := range s.Records() {
		if err != nil {
			return err
		}
		var v T
		if err = s.Unmarshal(rec.Key, rec.Data, &v); err != nil {
			// a record of a different type
			continue
		}
		if !fn(rec.Key, v) {
			return nil
		}
	}
	return nil
}

// Find returns the first record whose value decodes as T and satisfies pred.
// Returns false if there's no such record.
func Find[T any](s *storage.Storage, pred func(v T) bool) (Match[T], bool, error) {
	var res Match[T]
	found := false
	err := Each(s, func(key string, v T) bool {
		if pred(v) {
			res = Match[T]{Key: key, Value: v}
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return Match[T]{}, false, err
	}
	return res, found, nil
}

// Filter returns all records whose values decode as T and satisfy pred,
// in the order of s.Keys()
func Filter[T any](s *storage.Storage, pred func(v T) bool) ([]Match[T], error) {
	res := []Match[T]{}
	err := Each(s, func(key string, v T) bool {
		if pred(v) {
			res = append(res, Match[T]{Key: key, Value: v})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
