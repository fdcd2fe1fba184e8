package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/kballard/go-shellquote"
	"github.com/kjk/bstore/bundle"
	"github.com/kjk/bstore/log"
	"github.com/kjk/bstore/scan"
	"github.com/kjk/bstore/storage"
	"github.com/kjk/bstore/transport"
	"github.com/kjk/bstore/u"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/tidwall/pretty"
)

var errUsage = errors.New("invalid arguments, run with -h for usage")

type app struct {
	s     *storage.Storage
	opts  *storage.Options
	env   map[string]string
	stdin io.Reader
	out   io.Writer
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func needArgs(args []string, minArgs, maxArgs int) error {
	if len(args) < minArgs || len(args) > maxArgs {
		return errUsage
	}
	return nil
}

func (a *app) exec(ctx context.Context, args []string) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "keys":
		return a.keys()
	case "get":
		if err := needArgs(args, 1, 1); err != nil {
			return err
		}
		return a.get(args[0])
	case "set":
		if err := needArgs(args, 2, 2); err != nil {
			return err
		}
		return a.set(args[0], args[1])
	case "rm":
		for _, key := range args {
			if err := a.s.Remove(key); err != nil {
				return err
			}
		}
		return nil
	case "has":
		if err := needArgs(args, 1, 1); err != nil {
			return err
		}
		ok, err := a.s.Has(args[0])
		if err != nil {
			return err
		}
		a.printf("%v\n", ok)
		return nil
	case "clear":
		return a.s.Clear()
	case "stat":
		return a.stat()
	case "dump":
		return a.dump()
	case "find":
		if err := needArgs(args, 1, 1); err != nil {
			return err
		}
		return a.find(args[0])
	case "pack":
		if err := needArgs(args, 1, 1); err != nil {
			return err
		}
		return a.pack(args[0])
	case "unpack":
		if err := needArgs(args, 1, 2); err != nil {
			return err
		}
		return a.unpack(args)
	case "diff":
		if err := needArgs(args, 1, 1); err != nil {
			return err
		}
		return a.diff(args[0])
	case "fetch":
		if err := needArgs(args, 2, 2); err != nil {
			return err
		}
		return transport.Fetch(ctx, nil, args[0], args[1])
	case "s3-push", "s3-pull":
		if err := needArgs(args, 2, 2); err != nil {
			return err
		}
		return a.s3(ctx, cmd, args[0], args[1])
	case "s3-ls":
		if err := needArgs(args, 0, 1); err != nil {
			return err
		}
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		return a.s3List(ctx, prefix)
	case "s3-rm":
		if err := needArgs(args, 1, 1); err != nil {
			return err
		}
		return a.s3Remove(ctx, args[0])
	case "sftp-push", "sftp-pull":
		if err := needArgs(args, 2, 2); err != nil {
			return err
		}
		return a.sftp(cmd, args[0], args[1])
	case "shell":
		return a.shell(ctx)
	}
	return fmt.Errorf("unknown command '%s'", cmd)
}

func (a *app) keys() error {
	keys, err := a.s.KeyList()
	if err != nil {
		return err
	}
	for _, key := range keys {
		a.printf("%s\n", key)
	}
	return nil
}

func tryDecode[T any](s *storage.Storage, key string, d []byte) (any, bool) {
	var v T
	if err := s.Unmarshal(key, d, &v); err != nil {
		return nil, false
	}
	return v, true
}

// gob only decodes into *any values that were encoded as interfaces,
// so we try the types that values set from the command line have
var gobTypes = []func(s *storage.Storage, key string, d []byte) (any, bool){
	tryDecode[string],
	tryDecode[bool],
	tryDecode[int64],
	tryDecode[uint64],
	tryDecode[float64],
	tryDecode[[]byte],
	tryDecode[map[string]any],
	tryDecode[[]any],
	tryDecode[map[string]string],
	tryDecode[[]string],
}

// decode decodes a value without knowing its type. With gob, values of
// struct types can't be decoded.
func (a *app) decode(key string, d []byte) (any, bool) {
	var v any
	if err := a.s.Unmarshal(key, d, &v); err == nil {
		return v, true
	}
	if a.s.Codec().Name() != "gob" {
		return nil, false
	}
	for _, try := range gobTypes {
		if v, ok := try(a.s, key, d); ok {
			return v, true
		}
	}
	return nil, false
}

// render formats a value as indented json if it can be decoded,
// as a hex dump otherwise
func (a *app) render(key string, d []byte) string {
	if v, ok := a.decode(key, d); ok {
		if js, err := json.Marshal(v); err == nil {
			return string(pretty.Pretty(js))
		}
	}
	return spew.Sdump(d)
}

func (a *app) get(key string) error {
	d, ok, err := a.s.GetRaw(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key '%s' not found", key)
	}
	a.printf("%s", a.render(key, d))
	return nil
}

func (a *app) set(key string, s string) error {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		v = s
	}
	return a.s.Set(key, v)
}

func (a *app) stat() error {
	var n, size uint64
	for rec, err := range a.s.Records() {
		if err != nil {
			return err
		}
		n++
		size += uint64(len(rec.Data))
	}
	a.printf("dir:     %s\n", a.s.Dir())
	a.printf("codec:   %s\n", a.s.Codec().Name())
	a.printf("records: %s\n", humanize.Comma(int64(n)))
	a.printf("size:    %s\n", humanize.Bytes(size))
	return nil
}

func (a *app) dump() error {
	cfg := spew.ConfigState{Indent: "  ", SortKeys: true}
	for rec, err := range a.s.Records() {
		if err != nil {
			return err
		}
		a.printf("%s:\n", rec.Key)
		v, ok := a.decode(rec.Key, rec.Data)
		if !ok {
			cfg.Fdump(a.out, rec.Data)
			continue
		}
		cfg.Fdump(a.out, v)
	}
	return nil
}

func (a *app) find(expr string) error {
	field, want, ok := strings.Cut(expr, "=")
	if !ok || field == "" {
		return fmt.Errorf("invalid find expression '%s', expected <field>=<value>", expr)
	}
	matches, err := scan.Filter(a.s, func(m map[string]any) bool {
		v, ok := m[field]
		return ok && fmt.Sprint(v) == want
	})
	if err != nil {
		return err
	}
	for _, m := range matches {
		js, _ := json.Marshal(m.Value)
		a.printf("%s: %s\n", m.Key, pretty.Ugly(js))
	}
	return nil
}

func (a *app) pack(path string) error {
	timeStart := time.Now()
	n, err := bundle.Pack(a.s, path)
	if err != nil {
		return err
	}
	dur := time.Since(timeStart)
	sha1, err := u.FileSha1Hex(path)
	if err != nil {
		return err
	}
	size := u.FileSize(path)
	log.EventWithDuration("pack", dur, "records", n, "size", size, "sha1", sha1)
	a.printf("packed %d records into '%s' (%s, sha1 %s)\n", n, path, humanize.Bytes(uint64(size)), sha1)
	return nil
}

func (a *app) unpack(args []string) error {
	src := args[0]
	if !u.FileExists(src) {
		return fmt.Errorf("bundle '%s' doesn't exist", src)
	}
	dir := bundle.DefaultUnpackDir(src)
	if len(args) > 1 {
		dir = args[1]
	}
	timeStart := time.Now()
	s, err := bundle.Unpack(src, dir, a.opts)
	if err != nil {
		return err
	}
	n, err := s.Len()
	if err != nil {
		return err
	}
	log.EventWithDuration("unpack", time.Since(timeStart), "records", n, "dir", s.Dir())
	a.printf("unpacked %d records into '%s'\n", n, s.Dir())
	return nil
}

func (a *app) diff(otherDir string) error {
	if !u.DirExists(otherDir) {
		return fmt.Errorf("directory '%s' doesn't exist", otherDir)
	}
	other, err := storage.Create(otherDir, a.opts)
	if err != nil {
		return err
	}
	keys, err := a.s.KeyList()
	if err != nil {
		return err
	}
	otherKeys, err := other.KeyList()
	if err != nil {
		return err
	}
	keys = append(keys, otherKeys...)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	text := func(s *storage.Storage, key string) (string, error) {
		d, ok, err := s.GetRaw(key)
		if err != nil || !ok {
			return "", err
		}
		return a.render(key, d), nil
	}
	nDiff := 0
	for _, key := range keys {
		t1, err := text(a.s, key)
		if err != nil {
			return err
		}
		t2, err := text(other, key)
		if err != nil {
			return err
		}
		if t1 == t2 {
			continue
		}
		nDiff++
		ud := difflib.UnifiedDiff{
			A:        difflib.SplitLines(t1),
			B:        difflib.SplitLines(t2),
			FromFile: "a/" + key,
			ToFile:   "b/" + key,
			Context:  3,
		}
		s, err := difflib.GetUnifiedDiffString(ud)
		if err != nil {
			return err
		}
		a.printf("%s", s)
	}
	log.Verbosef("diff: %d of %d keys differ\n", nDiff, len(keys))
	return nil
}

func (a *app) s3(ctx context.Context, cmd string, from, to string) error {
	c, err := transport.NewS3(ctx, a.s3Config())
	if err != nil {
		return err
	}
	if cmd == "s3-push" {
		info, err := c.Push(ctx, from, to)
		if err != nil {
			return err
		}
		log.Event("s3-push", "bucket", info.Bucket, "key", info.Key, "size", info.Size)
		return nil
	}
	return c.Pull(ctx, from, to)
}

func (a *app) s3List(ctx context.Context, prefix string) error {
	c, err := transport.NewS3(ctx, a.s3Config())
	if err != nil {
		return err
	}
	names, err := c.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		a.printf("%s\n", name)
	}
	return nil
}

func (a *app) s3Remove(ctx context.Context, remotePath string) error {
	c, err := transport.NewS3(ctx, a.s3Config())
	if err != nil {
		return err
	}
	if !c.Exists(ctx, remotePath) {
		return fmt.Errorf("'%s' doesn't exist in bucket '%s'", remotePath, c.Bucket)
	}
	if err = c.Remove(ctx, remotePath); err != nil {
		return err
	}
	log.Event("s3-rm", "bucket", c.Bucket, "key", remotePath)
	return nil
}

func (a *app) sftp(cmd string, from, to string) error {
	c, err := transport.DialSFTP(a.sftpConfig())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			log.IfErrf(cerr, "closing sftp connection failed with '%s'", cerr)
		}
	}()
	if cmd == "sftp-push" {
		return c.Push(from, to)
	}
	return c.Pull(from, to)
}

// shell runs commands read from stdin, one per line, until eof or "exit"
func (a *app) shell(ctx context.Context) error {
	sc := bufio.NewScanner(a.stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		args, err := shellquote.Split(line)
		if err != nil {
			a.printf("error: %s\n", err)
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}
		if args[0] == "shell" {
			a.printf("error: already in shell\n")
			continue
		}
		if err = a.exec(ctx, args); err != nil {
			a.printf("error: %s\n", err)
		}
	}
	return sc.Err()
}
