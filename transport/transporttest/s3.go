// Package transporttest has in-memory servers for testing code that uses
// package transport.
package transporttest

import (
	"crypto/md5"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// S3Server is a minimal S3-compatible server keeping objects of a single
// bucket in memory. It supports what transport.S3 uses: bucket HEAD and
// location, object PUT, GET, HEAD and DELETE and ListObjectsV2.
// Request signatures are not checked.
//
// Over plain http minio-go uploads with aws-chunked encoding, which isn't
// decoded, so use NewTLSS3Server to test uploads.
type S3Server struct {
	*httptest.Server
	Bucket string

	mu       sync.Mutex
	objects  map[string][]byte
	modified time.Time
}

type listEntry struct {
	Key          string
	LastModified time.Time
	ETag         string
	Size         int64
	StorageClass string
}

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Name        string
	Prefix      string
	KeyCount    int
	MaxKeys     int
	IsTruncated bool
	Contents    []listEntry
}

type errorResult struct {
	XMLName    xml.Name `xml:"Error"`
	Code       string
	Message    string
	BucketName string
	Key        string
}

func newS3Server(bucket string) *S3Server {
	return &S3Server{
		Bucket:   bucket,
		objects:  map[string][]byte{},
		modified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// NewS3Server starts a plain http server
func NewS3Server(bucket string) *S3Server {
	s := newS3Server(bucket)
	s.Server = httptest.NewServer(s)
	return s
}

// NewTLSS3Server starts a https server. Use s.Client().Transport as
// transport of S3 clients.
func NewTLSS3Server(bucket string) *S3Server {
	s := newS3Server(bucket)
	s.Server = httptest.NewTLSServer(s)
	return s
}

// Endpoint returns host:port of the server
func (s *S3Server) Endpoint() string {
	_, hostPort, _ := strings.Cut(s.URL, "://")
	return hostPort
}

// Object returns content of an object
func (s *S3Server) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.objects[key]
	return d, ok
}

// PutObject sets content of an object
func (s *S3Server) PutObject(key string, d []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = d
}

func etag(d []byte) string {
	return fmt.Sprintf(`"%x"`, md5.Sum(d))
}

func writeXML(w http.ResponseWriter, code int, v any) {
	d, _ := xml.Marshal(v)
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Length", strconv.Itoa(len(xml.Header)+len(d)))
	w.WriteHeader(code)
	_, _ = io.WriteString(w, xml.Header)
	_, _ = w.Write(d)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, s3Code string, bucket, key string) {
	if r.Method == http.MethodHead {
		w.WriteHeader(code)
		return
	}
	writeXML(w, code, &errorResult{Code: s3Code, Message: s3Code, BucketName: bucket, Key: key})
}

func (s *S3Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != s.Bucket {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", bucket, key)
		return
	}
	if key == "" {
		s.serveBucket(w, r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		d, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "IncompleteBody", bucket, key)
			return
		}
		s.objects[key] = d
		w.Header().Set("ETag", etag(d))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		d, ok := s.objects[key]
		if !ok {
			writeError(w, r, http.StatusNotFound, "NoSuchKey", bucket, key)
			return
		}
		h := w.Header()
		h.Set("Content-Length", strconv.Itoa(len(d)))
		h.Set("Content-Type", "application/octet-stream")
		h.Set("ETag", etag(d))
		h.Set("Last-Modified", s.modified.Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(d)
		}
	case http.MethodDelete:
		delete(s.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", bucket, key)
	}
}

func (s *S3Server) serveBucket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && q.Has("location"):
		type location struct {
			XMLName xml.Name `xml:"LocationConstraint"`
			Value   string   `xml:",chardata"`
		}
		writeXML(w, http.StatusOK, &location{Value: "us-east-1"})
	case r.Method == http.MethodGet:
		prefix := q.Get("prefix")
		res := &listResult{
			Name:    s.Bucket,
			Prefix:  prefix,
			MaxKeys: 1000,
		}
		s.mu.Lock()
		for key, d := range s.objects {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			res.Contents = append(res.Contents, listEntry{
				Key:          key,
				LastModified: s.modified,
				ETag:         etag(d),
				Size:         int64(len(d)),
				StorageClass: "STANDARD",
			})
		}
		s.mu.Unlock()
		slices.SortFunc(res.Contents, func(a, b listEntry) int {
			return strings.Compare(a.Key, b.Key)
		})
		res.KeyCount = len(res.Contents)
		writeXML(w, http.StatusOK, res)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", s.Bucket, "")
	}
}
