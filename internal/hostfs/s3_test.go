package hostfs

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 keeps objects in a map and implements the S3Client subset.
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*params.Key]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3FSLifecycle(t *testing.T) {
	client := newFakeS3()
	fs, err := NewS3FSWithClient(client, S3FSConfig{Bucket: "containers", Prefix: "vaults"})
	if err != nil {
		t.Fatalf("NewS3FSWithClient failed: %v", err)
	}

	exists, err := fs.Exists("/c.dat")
	if err != nil || exists {
		t.Fatalf("fresh bucket should be empty (exists=%v err=%v)", exists, err)
	}

	if err := fs.Create("/c.dat"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, ok := client.objects["vaults/c.dat"]; !ok {
		t.Fatal("expected prefixed object key")
	}

	exists, _ = fs.Exists("/c.dat")
	if !exists {
		t.Fatal("object should exist after create")
	}

	if err := fs.Delete("/c.dat"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	exists, _ = fs.Exists("/c.dat")
	if exists {
		t.Fatal("object should be gone after delete")
	}
}

func TestS3FileSyncUploads(t *testing.T) {
	client := newFakeS3()
	fs, _ := NewS3FSWithClient(client, S3FSConfig{Bucket: "containers"})

	if err := fs.Create("/f"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f, err := fs.Open("/f")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if _, err := f.Write([]byte("blob contents")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	// not uploaded until sync
	if len(client.objects["f"]) != 0 {
		t.Error("write should not upload before sync")
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if !bytes.Equal(client.objects["f"], []byte("blob contents")) {
		t.Errorf("uploaded %q", client.objects["f"])
	}

	// a fresh handle sees the uploaded bytes
	r, err := fs.Open("/f")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	buf := make([]byte, 32)
	n, err := r.Read(buf)
	if err != nil || string(buf[:n]) != "blob contents" {
		t.Errorf("read = (%d, %v, %q)", n, err, buf[:n])
	}
}

func TestS3FSRequiresBucket(t *testing.T) {
	if _, err := NewS3FSWithClient(newFakeS3(), S3FSConfig{}); err == nil {
		t.Error("expected error for missing bucket")
	}
}
