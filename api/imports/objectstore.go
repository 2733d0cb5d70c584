package imports

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore is the file-store contract the pipeline consumes. Failures
// are terminal for the job that hit them.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, keys []string) error
}

const (
	importDefaultBucket  = "debtport"
	importFilePrefix     = "imports/"
	importDefaultRegion  = "us-east-1"
	importDefaultBaseURL = "https://debtport.s3.us-east-1.amazonaws.com/"
)

func importBucket() string {
	if b := strings.TrimSpace(os.Getenv("IMPORT_S3_BUCKET")); b != "" {
		return b
	}
	return importDefaultBucket
}

func importRegion() string {
	if r := strings.TrimSpace(os.Getenv("IMPORT_S3_REGION")); r != "" {
		return r
	}
	return importDefaultRegion
}

func importBaseURL() string {
	if u := strings.TrimSpace(os.Getenv("IMPORT_S3_BASE_URL")); u != "" {
		return strings.TrimSuffix(u, "/") + "/"
	}
	return importDefaultBaseURL
}

func sanitizePathSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_")
	return replacer.Replace(s)
}

// buildImportFileKey keys original upload files by import type and content
// hash so re-uploads of the same file land on the same object.
func buildImportFileKey(importType, fileHash, fileExt string) string {
	ext := strings.TrimSpace(fileExt)
	if ext == "" {
		ext = ".bin"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s%s/%s%s", importFilePrefix, sanitizePathSegment(importType), fileHash, ext)
}

func detectContentType(data []byte) string {
	if len(data) == 0 {
		return "application/octet-stream"
	}
	if len(data) > 512 {
		return http.DetectContentType(data[:512])
	}
	return http.DetectContentType(data)
}

// NewObjectStore picks the backend for original import files: S3 unless
// IMPORT_S3_ENABLED is turned off, then the local filesystem.
func NewObjectStore() ObjectStore {
	if s3Enabled() {
		return NewS3ObjectStore()
	}
	return NewLocalObjectStore()
}

func s3Enabled() bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv("IMPORT_S3_ENABLED")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes"
}

// LocalObjectStore keeps original import files on disk for dev setups
// without S3 credentials.
type LocalObjectStore struct {
	root string
}

func NewLocalObjectStore() *LocalObjectStore {
	root := strings.TrimSpace(os.Getenv("IMPORT_LOCAL_DIR"))
	if root == "" {
		root = "./data/imports"
	}
	return &LocalObjectStore{root: root}
}

func (o *LocalObjectStore) path(key string) string {
	return filepath.Join(o.root, filepath.FromSlash(key))
}

func (o *LocalObjectStore) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	p := o.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("create import dir: %w", err)
	}
	if err := os.WriteFile(p, body, 0644); err != nil {
		return "", fmt.Errorf("write import file %s: %w", p, err)
	}
	return p, nil
}

func (o *LocalObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(o.path(key))
	if err != nil {
		return nil, fmt.Errorf("read import file %s: %w", key, err)
	}
	return data, nil
}

func (o *LocalObjectStore) Remove(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := os.Remove(o.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove import file %s: %w", key, err)
		}
	}
	return nil
}

// S3ObjectStore stores original import files in S3.
type S3ObjectStore struct {
	bucket  string
	region  string
	baseURL string
}

func NewS3ObjectStore() *S3ObjectStore {
	return &S3ObjectStore{
		bucket:  importBucket(),
		region:  importRegion(),
		baseURL: importBaseURL(),
	}
}

func (o *S3ObjectStore) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(o.region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (o *S3ObjectStore) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	client, err := o.client(ctx)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3 (bucket %s, key %s): %w", o.bucket, key, err)
	}
	return o.baseURL + key, nil
}

func (o *S3ObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	client, err := o.client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3 (bucket %s, key %s): %w", o.bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (o *S3ObjectStore) Remove(ctx context.Context, keys []string) error {
	client, err := o.client(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("remove from s3 (bucket %s, key %s): %w", o.bucket, key, err)
		}
	}
	return nil
}
