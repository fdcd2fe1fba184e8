package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/kjk/bstore/atomicfile"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const bundleContentType = "application/octet-stream"

// S3Config describes a bucket in S3-compatible storage (AWS, R2, Backblaze,
// minio etc.)
type S3Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// Insecure uses http instead of https, for local minio servers
	Insecure bool
	// Transport is optional, http.DefaultTransport is used if nil
	Transport http.RoundTripper
}

// S3 stores bundles in a bucket
type S3 struct {
	Client *minio.Client
	Bucket string
}

// Validate returns an error if a required field is missing
func (c *S3Config) Validate() error {
	if c == nil {
		return errors.New("must provide config")
	}
	if c.Access == "" || c.Secret == "" || c.Bucket == "" || c.Endpoint == "" {
		return errors.New("must provide Access, Secret, Bucket and Endpoint in S3Config")
	}
	return nil
}

// NewS3 creates a client and checks that the bucket exists
func NewS3(ctx context.Context, config *S3Config) (*S3, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	mc, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.Access, config.Secret, ""),
		Region:    config.Region,
		Secure:    !config.Insecure,
		Transport: config.Transport,
	})
	if err != nil {
		return nil, err
	}
	found, err := mc.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", config.Bucket)
	}
	return &S3{
		Client: mc,
		Bucket: config.Bucket,
	}, nil
}

// Push uploads bundle file at localPath as remotePath
func (c *S3) Push(ctx context.Context, localPath string, remotePath string) (minio.UploadInfo, error) {
	opts := minio.PutObjectOptions{
		ContentType: bundleContentType,
		UserMetadata: map[string]string{
			"bundle-name": filepath.Base(localPath),
		},
	}
	return c.Client.FPutObject(ctx, c.Bucket, remotePath, localPath, opts)
}

// Pull downloads remotePath to localPath
func (c *S3) Pull(ctx context.Context, remotePath string, localPath string) error {
	obj, err := c.Client.GetObject(ctx, c.Bucket, remotePath, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()
	_, err = atomicfile.Copy(localPath, obj)
	return err
}

// Exists returns true if remotePath exists in the bucket.
// Any error (not only missing object) is reported as false.
func (c *S3) Exists(ctx context.Context, remotePath string) bool {
	_, err := c.Client.StatObject(ctx, c.Bucket, remotePath, minio.StatObjectOptions{})
	return err == nil
}

// List returns names of objects with a given prefix
func (c *S3) List(ctx context.Context, prefix string) ([]string, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}
	var res []string
	for oi := range c.Client.ListObjects(ctx, c.Bucket, opts) {
		if oi.Err != nil {
			return nil, oi.Err
		}
		res = append(res, oi.Key)
	}
	return res, nil
}

// Remove deletes remotePath from the bucket
func (c *S3) Remove(ctx context.Context, remotePath string) error {
	return c.Client.RemoveObject(ctx, c.Bucket, remotePath, minio.RemoveObjectOptions{})
}
