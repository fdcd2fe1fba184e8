package scan

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/bstore/codec"
	"github.com/kjk/bstore/storage"
)

type A struct {
	N    uint8
	Name string
}

type B struct {
	Count uint32
	Tags  []string
}

var (
	as = []A{{0, "one"}, {1, "two"}, {2, "three"}}
	bs = []B{{0, []string{"a"}}, {1, []string{"b", "c"}}, {2, []string{"d"}}}
)

func mixedStorage(t *testing.T, c codec.Codec) *storage.Storage {
	t.Helper()
	s, err := storage.Create(t.TempDir(), &storage.Options{Codec: c})
	assert.NoError(t, err)
	i := 0
	for _, a := range as {
		assert.NoError(t, s.Set(strconv.Itoa(i), a))
		i++
	}
	for _, b := range bs {
		assert.NoError(t, s.Set(strconv.Itoa(i), b))
		i++
	}
	// a value that is neither A nor B
	assert.NoError(t, s.Set("string", "just a string"))
	return s
}

func codecs() []codec.Codec {
	return []codec.Codec{codec.Gob{}, codec.JSON{}}
}

func TestFind(t *testing.T) {
	for _, c := range codecs() {
		s := mixedStorage(t, c)

		m, ok, err := Find(s, func(v A) bool { return v.Name == "two" })
		assert.NoError(t, err)
		assert.True(t, ok, c.Name())
		assert.Equal(t, "1", m.Key)
		assert.Equal(t, as[1], m.Value)

		mb, ok, err := Find(s, func(v B) bool { return v.Count == 2 })
		assert.NoError(t, err)
		assert.True(t, ok, c.Name())
		assert.Equal(t, "5", mb.Key)
		assert.Equal(t, bs[2], mb.Value)

		_, ok, err = Find(s, func(v A) bool { return v.N > 254 })
		assert.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestFilter(t *testing.T) {
	for _, c := range codecs() {
		s := mixedStorage(t, c)

		found, err := Filter(s, func(v A) bool { return v.N < 2 })
		assert.NoError(t, err)
		assert.Equal(t, 2, len(found), c.Name())
		for _, m := range found {
			assert.Equal(t, as[m.Value.N], m.Value)
			assert.Equal(t, strconv.Itoa(int(m.Value.N)), m.Key)
		}

		all, err := Filter(s, func(v B) bool { return true })
		assert.NoError(t, err)
		assert.Equal(t, 3, len(all), c.Name())
		for _, m := range all {
			assert.Equal(t, bs[m.Value.Count], m.Value)
		}

		none, err := Filter(s, func(v A) bool { return v.N > 254 })
		assert.NoError(t, err)
		assert.NotNil(t, none)
		assert.Equal(t, 0, len(none))
	}
}

func TestFilterOrderMatchesKeys(t *testing.T) {
	s := mixedStorage(t, nil)
	var keys []string
	for key, err := range s.Keys() {
		assert.NoError(t, err)
		keys = append(keys, key)
	}
	found, err := Filter(s, func(v A) bool { return true })
	assert.NoError(t, err)
	var exp []string
	for _, key := range keys {
		for _, m := range found {
			if m.Key == key {
				exp = append(exp, key)
			}
		}
	}
	var got []string
	for _, m := range found {
		got = append(got, m.Key)
	}
	assert.Equal(t, exp, got)
}

func TestEmptyStorage(t *testing.T) {
	s, err := storage.Create(t.TempDir(), nil)
	assert.NoError(t, err)
	_, ok, err := Find(s, func(v A) bool { return true })
	assert.NoError(t, err)
	assert.False(t, ok)
	found, err := Filter(s, func(v A) bool { return true })
	assert.NoError(t, err)
	assert.Equal(t, 0, len(found))
}

func TestCorruptRecordSkipped(t *testing.T) {
	s := mixedStorage(t, nil)
	assert.NoError(t, s.SetRaw("garbage", []byte{0xff, 0xfe, 0xfd}))
	found, err := Filter(s, func(v A) bool { return true })
	assert.NoError(t, err)
	assert.Equal(t, len(as), len(found))
}

func TestEachStops(t *testing.T) {
	s := mixedStorage(t, nil)
	n := 0
	err := Each(s, func(key string, v A) bool {
		n++
		return false
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnreadableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permissions are not enforced")
	}
	dir := filepath.Join(t.TempDir(), "store")
	s, err := storage.Create(dir, nil)
	assert.NoError(t, err)
	assert.NoError(t, s.Set("a", A{N: 1}))
	assert.NoError(t, os.Chmod(dir, 0))
	defer os.Chmod(dir, 0755)
	_, _, err = Find(s, func(v A) bool { return true })
	assert.Error(t, err)
	_, err = Filter(s, func(v A) bool { return true })
	assert.Error(t, err)
}
