package transport

import (
	"context"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/kjk/bstore/atomicfile"
)

// Fetch downloads uri to dstPath. Non-2xx responses are errors.
// If client is nil, http.DefaultClient is used.
func Fetch(ctx context.Context, client *http.Client, uri string, dstPath string) error {
	f, err := atomicfile.New(dstPath)
	if err != nil {
		return err
	}
	defer f.Cancel()

	rb := requests.URL(uri).ToWriter(f)
	if client != nil {
		rb = rb.Client(client)
	}
	if err = rb.Fetch(ctx); err != nil {
		return err
	}
	return f.Close()
}
