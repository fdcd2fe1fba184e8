// bstore is a command line tool for inspecting and managing a bstore
// directory: reading and writing records, packing into bundles and moving
// bundles between machines.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/kjk/bstore/codec"
	"github.com/kjk/bstore/log"
	"github.com/kjk/bstore/storage"
	"github.com/kjk/bstore/u"
)

const usage = `usage: bstore [flags] <command> [args]

commands:
  keys                     list keys
  get <key>                print a value
  set <key> <json>         set a value (invalid json is stored as a string)
  rm <key>...              remove records
  has <key>                print true or false
  clear                    remove all records
  stat                     print number of records and their size
  dump                     print all records
  find <field>=<value>     print records with a matching field
  pack <file>              write all records to a bundle file
  unpack <file> [dir]      create a new directory from a bundle file
  diff <dir>               compare with another directory
  fetch <url> <file>       download a bundle file
  s3-push <file> <remote>  upload a bundle to S3
  s3-pull <remote> <file>  download a bundle from S3
  s3-ls [prefix]           list bundles in S3
  s3-rm <remote>           delete a bundle from S3
  sftp-push <file> <remote>
  sftp-pull <remote> <file>
  shell                    read commands from stdin

flags:
`

type flags struct {
	dir     string
	codec   string
	verbose bool
	logDir  string
	envPath string
}

func parseFlags(args []string, stderr io.Writer) (*flags, []string, error) {
	var f flags
	fs := flag.NewFlagSet("bstore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.dir, "dir", ".", "storage directory")
	fs.StringVar(&f.codec, "codec", "json", "codec of values: gob, json, toon or msgp")
	fs.BoolVar(&f.verbose, "v", false, "verbose logging")
	fs.StringVar(&f.logDir, "logdir", "", "if set, write log files to this directory")
	fs.StringVar(&f.envPath, "env", "", "file with BSTORE_S3_* and BSTORE_SFTP_* settings")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return &f, fs.Args(), nil
}

func newApp(f *flags, stdin io.Reader, stdout io.Writer) (*app, error) {
	c, err := codec.ByName(f.codec)
	if err != nil {
		return nil, err
	}
	env := map[string]string{}
	if f.envPath != "" {
		env, err = u.ParseEnvFile(u.ExpandTildeInPath(f.envPath))
		if err != nil {
			return nil, err
		}
	}
	opts := &storage.Options{
		Codec: c,
		Logf:  log.Verbosef,
	}
	s, err := storage.Create(u.ExpandTildeInPath(f.dir), opts)
	if err != nil {
		return nil, err
	}
	return &app{
		s:     s,
		opts:  opts,
		env:   env,
		stdin: stdin,
		out:   stdout,
	}, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	f, rest, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	log.Verbose = f.verbose
	log.Output = stderr
	log.Init(&log.Config{Dir: f.logDir})
	defer log.Close()

	a, err := newApp(f, stdin, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 1
	}
	timeStart := time.Now()
	err = a.exec(ctx, rest)
	log.Verbosef("%s took %s\n", rest[0], time.Since(timeStart))
	if err != nil {
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
