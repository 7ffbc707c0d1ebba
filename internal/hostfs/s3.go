package hostfs

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/containerfs/containerfs/pkg/errors"
	"github.com/containerfs/containerfs/pkg/utils"
)

// S3Client is the subset of the S3 API the host filesystem needs. Tests
// inject a fake; production wires *s3.Client.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3FSConfig configures the S3-backed host filesystem.
type S3FSConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// S3FS keeps each host file as one S3 object. Opening a file downloads the
// whole object into memory; Sync uploads it back. Container blobs are
// written through whole-region rewrites, so object-per-file granularity is
// the right unit.
type S3FS struct {
	client S3Client
	config S3FSConfig
}

// NewS3FS creates an S3-backed host filesystem using the default AWS
// credential chain.
func NewS3FS(ctx context.Context, config S3FSConfig) (*S3FS, error) {
	if config.Bucket == "" {
		return nil, errors.InvalidArgument("bucket is required")
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(config.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, errors.New(errors.KindInitializationFailed, "AWS configuration failed").WithCause(err)
	}

	return NewS3FSWithClient(s3.NewFromConfig(awsCfg), config)
}

// NewS3FSWithClient creates an S3-backed host filesystem over an existing
// client.
func NewS3FSWithClient(client S3Client, config S3FSConfig) (*S3FS, error) {
	if config.Bucket == "" {
		return nil, errors.InvalidArgument("bucket is required")
	}
	return &S3FS{client: client, config: config}, nil
}

func (fs *S3FS) key(path string) string {
	key := strings.TrimPrefix(utils.NormalizePath(path), "/")
	if fs.config.Prefix != "" {
		return strings.TrimSuffix(fs.config.Prefix, "/") + "/" + key
	}
	return key
}

// Create writes an empty object at path.
func (fs *S3FS) Create(path string) error {
	_, err := fs.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(fs.config.Bucket),
		Key:    aws.String(fs.key(path)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return errors.IO("put object failed", err).WithPath(path)
	}
	return nil
}

// Open downloads the object and returns a buffered handle over it.
func (fs *S3FS) Open(path string) (HostFile, error) {
	out, err := fs.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(fs.config.Bucket),
		Key:    aws.String(fs.key(path)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errors.NotFound(path)
		}
		return nil, errors.IO("get object failed", err).WithPath(path)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.IO("object download failed", err).WithPath(path)
	}

	return &S3File{fs: fs, path: path, data: data}, nil
}

// Delete removes the object.
func (fs *S3FS) Delete(path string) error {
	_, err := fs.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(fs.config.Bucket),
		Key:    aws.String(fs.key(path)),
	})
	if err != nil {
		return errors.IO("delete object failed", err).WithPath(path)
	}
	return nil
}

// Exists reports whether the object is present.
func (fs *S3FS) Exists(path string) (bool, error) {
	_, err := fs.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(fs.config.Bucket),
		Key:    aws.String(fs.key(path)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, errors.IO("head object failed", err).WithPath(path)
	}
	return true, nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return stderrors.As(err, &noSuchKey) || stderrors.As(err, &notFound)
}

// S3File buffers one object in memory; Sync uploads the buffer.
type S3File struct {
	mu     sync.Mutex
	fs     *S3FS
	path   string
	data   []byte
	pos    int64
	dirty  bool
	closed bool
}

// Read reads up to len(p) bytes at the cursor.
func (f *S3File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New(errors.KindIoError, "file is closed")
	}
	if f.pos >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write writes p at the cursor, extending the buffer as needed.
func (f *S3File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New(errors.KindIoError, "file is closed")
	}

	end := f.pos + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[f.pos:end], p)
	f.pos = end
	f.dirty = true
	return len(p), nil
}

// Seek repositions the cursor.
func (f *S3File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New(errors.KindIoError, "file is closed")
	}

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.pos + offset
	case io.SeekEnd:
		next = int64(len(f.data)) + offset
	default:
		return 0, errors.InvalidArgument("invalid whence")
	}
	if next < 0 {
		return 0, errors.InvalidArgument("negative seek position")
	}
	f.pos = next
	return next, nil
}

// Size returns the buffered length.
func (f *S3File) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New(errors.KindIoError, "file is closed")
	}
	return int64(len(f.data)), nil
}

// Sync uploads the buffer when dirty.
func (f *S3File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New(errors.KindIoError, "file is closed")
	}
	if !f.dirty {
		return nil
	}

	_, err := f.fs.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(f.fs.config.Bucket),
		Key:    aws.String(f.fs.key(f.path)),
		Body:   bytes.NewReader(f.data),
	})
	if err != nil {
		return errors.IO("object upload failed", err).WithPath(f.path)
	}
	f.dirty = false
	return nil
}

// Close uploads pending bytes and marks the handle closed.
func (f *S3File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	if err := f.Sync(); err != nil {
		return err
	}

	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
