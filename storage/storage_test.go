package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/bstore/atomicfile"
	"github.com/kjk/bstore/codec"
)

type Settings struct {
	Theme  string
	Volume int
}

type Window struct {
	X, Y          int
	Width, Height int
	Maximized     bool
}

func newStorage(t *testing.T, c codec.Codec) *Storage {
	t.Helper()
	s, err := Create(filepath.Join(t.TempDir(), "store"), &Options{Codec: c})
	assert.NoError(t, err)
	return s
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	var res []string
	for _, e := range entries {
		res = append(res, e.Name())
	}
	return res
}

func TestSetGet(t *testing.T) {
	for _, c := range []codec.Codec{codec.Gob{}, codec.JSON{}} {
		s := newStorage(t, c)
		exp := Settings{Theme: "dark", Volume: 7}
		assert.NoError(t, s.Set("settings", exp))
		got, ok, err := Get[Settings](s, "settings")
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, exp, got)

		assert.NoError(t, s.Clear())
		_, ok, err = Get[Settings](s, "settings")
		assert.NoError(t, err)
		assert.False(t, ok)
		keys, err := s.KeyList()
		assert.NoError(t, err)
		assert.Empty(t, keys)
	}
}

type Prefs struct {
	Name    string
	Enabled *bool
	Scores  []int
	Tags    map[string]string
}

func TestRoundTripZeroValues(t *testing.T) {
	disabled := false
	zero := 0
	type withPtr struct {
		N *int
	}
	for _, c := range []codec.Codec{nil, codec.JSON{}, codec.JSON{Indent: "  "}} {
		s := newStorage(t, c)
		exp := Prefs{
			Name:    "x",
			Enabled: &disabled,
			Scores:  []int{},
			Tags:    map[string]string{},
		}
		assert.NoError(t, s.Set("prefs", exp))
		got, ok, err := Get[Prefs](s, "prefs")
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, exp, got)
		assert.NotNil(t, got.Enabled)
		assert.NotNil(t, got.Scores)
		assert.NotNil(t, got.Tags)

		assert.NoError(t, s.Set("ptr", withPtr{N: &zero}))
		gotPtr, _, err := Get[withPtr](s, "ptr")
		assert.NoError(t, err)
		assert.NotNil(t, gotPtr.N)
		assert.Equal(t, 0, *gotPtr.N)

		assert.NoError(t, s.Set("empty", Prefs{}))
		gotEmpty, _, err := Get[Prefs](s, "empty")
		assert.NoError(t, err)
		assert.Equal(t, Prefs{}, gotEmpty)
	}
}

// readers of a key being overwritten see either the old or the new value,
// never a partial file
func TestConcurrentOverwrite(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("rename over a file open for reading fails on windows")
	}
	s := newStorage(t, nil)
	const size = 256 * 1024
	payloads := [][]byte{
		bytes.Repeat([]byte{'a'}, size),
		bytes.Repeat([]byte{'b'}, size*2),
	}
	assert.NoError(t, s.SetRaw("k", payloads[0]))

	var done atomic.Bool
	var nReads, nBad, nAbsent atomic.Int64
	var readErr error
	var errOnce sync.Once
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				d, ok, err := s.GetRaw("k")
				nReads.Add(1)
				if err != nil {
					errOnce.Do(func() { readErr = err })
					continue
				}
				if !ok {
					nAbsent.Add(1)
					continue
				}
				if !bytes.Equal(d, payloads[0]) && !bytes.Equal(d, payloads[1]) {
					nBad.Add(1)
				}
			}
		}()
	}

	var writeErr error
	for i := range 100 {
		if writeErr = s.SetRaw("k", payloads[i%2]); writeErr != nil {
			break
		}
	}
	done.Store(true)
	wg.Wait()

	assert.NoError(t, writeErr)
	assert.NoError(t, readErr)
	assert.Equal(t, int64(0), nAbsent.Load())
	assert.Equal(t, int64(0), nBad.Load(), "torn reads out of %d", nReads.Load())
	assert.Equal(t, []string{"k.rec"}, dirNames(t, s.Dir()))
}

func TestOverwrite(t *testing.T) {
	s := newStorage(t, nil)
	assert.NoError(t, s.Set("k", Settings{Theme: "light", Volume: 1}))
	assert.NoError(t, s.Set("k", Settings{Theme: "dark", Volume: 2}))
	got, ok, err := Get[Settings](s, "k")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Settings{Theme: "dark", Volume: 2}, got)
	// exactly one file, no leftover temporary files
	assert.Equal(t, []string{"k.rec"}, dirNames(t, s.Dir()))
}

func TestAbsent(t *testing.T) {
	s := newStorage(t, nil)
	_, ok, err := Get[Settings](s, "missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	d, ok, err := s.GetRaw("missing")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, d)

	has, err := s.Has("missing")
	assert.NoError(t, err)
	assert.False(t, has)

	// removing absent key is not an error
	assert.NoError(t, s.Remove("missing"))

	assert.NoError(t, s.Set("k", 5))
	assert.NoError(t, s.Remove("k"))
	_, ok, err = Get[int](s, "k")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOrDefault(t *testing.T) {
	s := newStorage(t, nil)
	def := Settings{Theme: "system"}
	v, err := GetOrDefault(s, "settings", def)
	assert.NoError(t, err)
	assert.Equal(t, def, v)

	assert.NoError(t, s.Set("settings", Settings{Theme: "dark"}))
	v, err = GetOrDefault(s, "settings", def)
	assert.NoError(t, err)
	assert.Equal(t, "dark", v.Theme)
}

func TestWrongType(t *testing.T) {
	s := newStorage(t, nil)
	assert.NoError(t, s.Set("win", Window{Width: 800, Height: 600}))
	_, ok, err := Get[Settings](s, "win")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrDeserialize))
}

func TestSerializeError(t *testing.T) {
	s := newStorage(t, codec.JSON{})
	err := s.Set("ch", make(chan int))
	assert.True(t, errors.Is(err, ErrSerialize))
	assert.Empty(t, dirNames(t, s.Dir()))
}

func TestInvalidKey(t *testing.T) {
	s := newStorage(t, nil)
	err := s.Set("", 1)
	assert.True(t, errors.Is(err, ErrInvalidKey))
	_, _, err = Get[int](s, "")
	assert.True(t, errors.Is(err, ErrInvalidKey))
	// '/' is escaped to 3 characters
	long := strings.Repeat("/", 100)
	err = s.Set(long, 1)
	assert.True(t, errors.Is(err, ErrInvalidKey))
	assert.True(t, errors.Is(s.Remove(long), ErrInvalidKey))
}

func TestUnusualKeys(t *testing.T) {
	s := newStorage(t, nil)
	keys := []string{
		"a", "A", "a/b", "../escape", ".", "..", "with space", "nul\x00byte",
		"con", "CON", "lpt1", "100%", "%41", "ünïcödé", "a.rec", ".tmp-x",
		"\xff\xfe", "back\\slash", "c:", "a*b?c", "-", "_",
	}
	for i, key := range keys {
		assert.NoError(t, s.Set(key, i), key)
	}
	// all records are in the storage directory, no sub-directories
	names := dirNames(t, s.Dir())
	assert.Equal(t, len(keys), len(names))
	for _, name := range names {
		assert.False(t, strings.ContainsAny(name, `/\:*?"<>|`), name)
	}
	for i, key := range keys {
		v, ok, err := Get[int](s, key)
		assert.NoError(t, err, key)
		assert.True(t, ok, key)
		assert.Equal(t, i, v, key)
	}
	got, err := s.KeyList()
	assert.NoError(t, err)
	exp := slices.Clone(keys)
	slices.Sort(exp)
	assert.Equal(t, exp, got)
}

func TestKeyFileNames(t *testing.T) {
	tests := []string{
		"settings", "settings.rec",
		"Settings", "%53ettings.rec",
		"a/b", "a%2Fb.rec",
		"con", "%63on.rec",
		"com1", "%63om1.rec",
		"console", "console.rec",
		"..", "%2E%2E.rec",
	}
	for i := 0; i < len(tests); i += 2 {
		key, exp := tests[i], tests[i+1]
		name, err := KeyToFileName(key)
		assert.NoError(t, err)
		assert.Equal(t, exp, name)
		got, ok := FileNameToKey(name)
		assert.True(t, ok, name)
		assert.Equal(t, key, got)
	}
}

func TestForeignFileNames(t *testing.T) {
	names := []string{
		"readme.txt", ".rec", "%61.rec", "con.rec", "a%2fb.rec", "A.rec",
		"a%.rec", "a%4.rec", "a%4G.rec", "a.b.rec", ".tmp-k.rec-123",
	}
	for _, name := range names {
		_, ok := FileNameToKey(name)
		assert.False(t, ok, name)
	}
}

func TestForeignFilesIgnored(t *testing.T) {
	s := newStorage(t, nil)
	assert.NoError(t, s.Set("a", 1))
	assert.NoError(t, s.Set("b", 2))
	foreign := []string{"readme.txt", "A.rec", ".tmp-a.rec-1234"}
	for _, name := range foreign {
		assert.NoError(t, os.WriteFile(filepath.Join(s.Dir(), name), []byte("x"), 0644))
	}
	assert.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "c.rec"), 0755))

	keys, err := s.KeyList()
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
	n, err := s.Len()
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NoError(t, s.Clear())
	names := dirNames(t, s.Dir())
	slices.Sort(names)
	exp := append([]string{"c.rec"}, foreign...)
	slices.Sort(exp)
	assert.Equal(t, exp, names)
}

func TestInFlightWriteNotListed(t *testing.T) {
	s := newStorage(t, nil)
	assert.NoError(t, s.Set("a", 1))
	path, err := s.Path("b")
	assert.NoError(t, err)
	f, err := atomicfile.New(path)
	assert.NoError(t, err)
	defer f.Cancel()
	_, err = f.Write([]byte("2"))
	assert.NoError(t, err)
	assert.True(t, atomicfile.IsTempName(filepath.Base(f.TempPath())))

	keys, err := s.KeyList()
	assert.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
	has, err := s.Has("b")
	assert.NoError(t, err)
	assert.False(t, has)

	assert.NoError(t, f.Close())
	keys, err = s.KeyList()
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestKeysLazy(t *testing.T) {
	s := newStorage(t, nil)
	for i := 0; i < 1000; i++ {
		assert.NoError(t, s.SetRaw("k"+strconv.Itoa(i), []byte{byte(i)}))
	}
	n := 0
	for key, err := range s.Keys() {
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(key, "k"))
		n++
		if n == 10 {
			break
		}
	}
	assert.Equal(t, 10, n)
	count, err := s.Len()
	assert.NoError(t, err)
	assert.Equal(t, 1000, count)
}

func TestRecords(t *testing.T) {
	s := newStorage(t, nil)
	exp := map[string][]byte{
		"a":     []byte("payload a"),
		"b":     {},
		"c/d/e": {0, 1, 2, 3},
	}
	for k, v := range exp {
		assert.NoError(t, s.SetRaw(k, v))
	}
	got := map[string][]byte{}
	for rec, err := range s.Records() {
		assert.NoError(t, err)
		got[rec.Key] = rec.Data
	}
	assert.Equal(t, len(exp), len(got))
	for k, v := range exp {
		assert.Equal(t, string(v), string(got[k]), k)
	}
}

func TestCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	s, err := Create(dir, nil)
	assert.NoError(t, err)
	st, err := os.Stat(dir)
	assert.NoError(t, err)
	assert.True(t, st.IsDir())
	assert.Equal(t, codec.Default.Name(), s.Codec().Name())

	// re-opening sees existing records
	assert.NoError(t, s.Set("k", "v"))
	s2, err := Create(dir, nil)
	assert.NoError(t, err)
	v, ok, err := Get[string](s2, "k")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	// path is a file
	file := filepath.Join(t.TempDir(), "file")
	assert.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = Create(file, nil)
	assert.Error(t, err)
	assert.True(t, IsIOError(err))

	// parent is a file
	_, err = Create(filepath.Join(file, "sub"), nil)
	assert.Error(t, err)
	assert.True(t, IsIOError(err))
}

func TestLogf(t *testing.T) {
	var logged []string
	opts := &Options{
		Logf: func(format string, args ...any) {
			logged = append(logged, format)
		},
	}
	s, err := Create(filepath.Join(t.TempDir(), "new"), opts)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(logged))
	assert.NoError(t, s.Clear())
	assert.Equal(t, 2, len(logged))
}
