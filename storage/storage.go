// Package storage opens conversion sources and destinations on the local
// filesystem or in Google Cloud Storage (gs://bucket/key paths).
package storage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	gcs "cloud.google.com/go/storage"
	"github.com/klauspost/compress/gzip"
)

const (
	gsScheme      = "gs://"
	partialSuffix = ".partial"
)

// ErrNotExist is returned when a source does not exist.
var ErrNotExist = errors.New("source does not exist")

// ParseGS splits a gs://bucket/key path.
func ParseGS(p string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(p, gsScheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(p, gsScheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// IsRemote reports whether p names a Cloud Storage object.
func IsRemote(p string) bool {
	return strings.HasPrefix(p, gsScheme)
}

// PartialPath returns the name a destination is written under until it is committed.
func PartialPath(dst string) string {
	return dst + partialSuffix
}

// IsPartial reports whether p is a destination still under its partial name.
func IsPartial(p string) bool {
	return strings.HasSuffix(p, partialSuffix)
}

// OutputPath derives the destination of src: <stem><ext> in dir, or next to
// src when dir is empty. A trailing .gz and the mzML extension are dropped.
func OutputPath(src, dir, ext string) string {
	base := src
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = filepath.Base(base)
	if strings.EqualFold(path.Ext(base), ".gz") {
		base = base[:len(base)-3]
	}
	if e := path.Ext(base); strings.EqualFold(e, ".mzml") {
		base = base[:len(base)-len(e)]
	}
	name := base + ext

	if dir == "" {
		if i := strings.LastIndex(src, "/"); i >= 0 {
			return src[:i+1] + name
		}
		return filepath.Join(filepath.Dir(src), name)
	}
	if IsRemote(dir) {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}

// Store resolves paths to readers and writers. The Cloud Storage client is
// created on first use of a gs:// path.
type Store struct {
	mu     sync.Mutex
	client *gcs.Client
	dial   func(ctx context.Context) (*gcs.Client, error)
}

// New creates a Store using default Google credentials for gs:// paths.
func New() *Store {
	return &Store{dial: func(ctx context.Context) (*gcs.Client, error) {
		return gcs.NewClient(ctx)
	}}
}

// NewWithClient creates a Store that uses client for gs:// paths.
func NewWithClient(client *gcs.Client) *Store {
	return &Store{client: client}
}

func (s *Store) gcsClient(ctx context.Context) (*gcs.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	if s.dial == nil {
		return nil, errors.New("no cloud storage client configured")
	}
	client, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create google cloud client: %w", err)
	}
	s.client = client
	return client, nil
}

// Close releases the Cloud Storage client, if one was created.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// Open opens src for streaming. Sources ending in .gz are decompressed.
func (s *Store) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	if bucket, key, ok := ParseGS(src); ok {
		client, err := s.gcsClient(ctx)
		if err != nil {
			return nil, err
		}
		r, err := client.Bucket(bucket).Object(key).NewReader(ctx)
		if err != nil {
			if errors.Is(err, gcs.ErrObjectNotExist) {
				return nil, fmt.Errorf("%s: %w", src, ErrNotExist)
			}
			return nil, err
		}
		rc = r
	} else {
		f, err := os.Open(src)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", src, ErrNotExist)
			}
			return nil, err
		}
		rc = f
	}

	if !strings.EqualFold(path.Ext(src), ".gz") {
		return rc, nil
	}
	zr, err := gzip.NewReader(bufio.NewReader(rc))
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	return &gzipSource{Reader: zr, under: rc}, nil
}

type gzipSource struct {
	*gzip.Reader
	under io.Closer
}

func (g *gzipSource) Close() error {
	err := g.Reader.Close()
	if cerr := g.under.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadAt opens a finished file for random access. Remote objects are read
// into memory.
func (s *Store) ReadAt(ctx context.Context, p string) (ReaderAtSeekCloser, error) {
	if bucket, key, ok := ParseGS(p); ok {
		client, err := s.gcsClient(ctx)
		if err != nil {
			return nil, err
		}
		r, err := client.Bucket(bucket).Object(key).NewReader(ctx)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		buf, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return nopCloser{bytes.NewReader(buf)}, nil
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ReaderAtSeekCloser is the random-access view used to read Parquet footers.
type ReaderAtSeekCloser interface {
	io.ReaderAt
	io.ReadSeeker
	io.Closer
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

// Target is a destination being written. Its content becomes visible under
// the final name only after Commit.
type Target interface {
	io.Writer
	// Name is the final destination path.
	Name() string
	// Commit finishes the write and moves it to the final name.
	Commit() error
	// Keep finishes the write and leaves it under the partial name.
	Keep() error
	// Discard drops everything written.
	Discard() error
}

// Create starts writing dst under its partial name.
func (s *Store) Create(ctx context.Context, dst string) (Target, error) {
	if bucket, key, ok := ParseGS(dst); ok {
		client, err := s.gcsClient(ctx)
		if err != nil {
			return nil, err
		}
		return newObjectTarget(ctx, client.Bucket(bucket), key, dst), nil
	}
	return newFileTarget(dst)
}

// fileTarget writes <dst>.partial and renames it on commit.
type fileTarget struct {
	f       *os.File
	w       *bufio.Writer
	final   string
	partial string
}

func newFileTarget(dst string) (*fileTarget, error) {
	partial := PartialPath(dst)
	if err := os.MkdirAll(filepath.Dir(partial), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(partial)
	if err != nil {
		return nil, err
	}
	return &fileTarget{f: f, w: bufio.NewWriterSize(f, 1<<20), final: dst, partial: partial}, nil
}

func (t *fileTarget) Write(p []byte) (int, error) { return t.w.Write(p) }

func (t *fileTarget) Name() string { return t.final }

func (t *fileTarget) finish() error {
	if err := t.w.Flush(); err != nil {
		t.f.Close()
		return err
	}
	if err := t.f.Sync(); err != nil {
		t.f.Close()
		return err
	}
	return t.f.Close()
}

func (t *fileTarget) Commit() error {
	if err := t.finish(); err != nil {
		return err
	}
	return os.Rename(t.partial, t.final)
}

func (t *fileTarget) Keep() error {
	return t.finish()
}

func (t *fileTarget) Discard() error {
	t.f.Close()
	if err := os.Remove(t.partial); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// objectTarget uploads <key>.partial and copies it to the final key on commit.
type objectTarget struct {
	ctx     context.Context
	cancel  context.CancelFunc
	bucket  *gcs.BucketHandle
	w       *gcs.Writer
	key     string
	partial string
	final   string
}

func newObjectTarget(ctx context.Context, bucket *gcs.BucketHandle, key, dst string) *objectTarget {
	ctx, cancel := context.WithCancel(ctx)
	partial := PartialPath(key)
	return &objectTarget{
		ctx:     ctx,
		cancel:  cancel,
		bucket:  bucket,
		w:       bucket.Object(partial).NewWriter(ctx),
		key:     key,
		partial: partial,
		final:   dst,
	}
}

func (t *objectTarget) Write(p []byte) (int, error) { return t.w.Write(p) }

func (t *objectTarget) Name() string { return t.final }

func (t *objectTarget) Commit() error {
	defer t.cancel()
	if err := t.w.Close(); err != nil {
		return fmt.Errorf("error closing GCS object %s: %w", t.partial, err)
	}
	src := t.bucket.Object(t.partial)
	if _, err := t.bucket.Object(t.key).CopierFrom(src).Run(t.ctx); err != nil {
		return fmt.Errorf("error copying GCS object %s: %w", t.partial, err)
	}
	return src.Delete(t.ctx)
}

func (t *objectTarget) Keep() error {
	defer t.cancel()
	return t.w.Close()
}

// Discard cancels the upload; an unfinished object is never created.
func (t *objectTarget) Discard() error {
	t.cancel()
	_ = t.w.Close()
	return nil
}
