package hostfs

import (
	stderrors "errors"
	"io"
	"os"
	"path/filepath"

	"github.com/containerfs/containerfs/pkg/errors"
)

// DiskFS stores host files on the local filesystem.
type DiskFS struct{}

// NewDiskFS creates a disk-backed host filesystem.
func NewDiskFS() *DiskFS {
	return &DiskFS{}
}

// Create creates or truncates a file, creating parent directories on
// demand.
func (fs *DiskFS) Create(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.IO("create parent directories failed", err).WithPath(path)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.IO("create failed", err).WithPath(path)
	}
	return f.Close()
}

// Open opens an existing file read-write.
func (fs *DiskFS) Open(path string) (HostFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(path)
		}
		return nil, errors.IO("open failed", err).WithPath(path)
	}
	return &DiskFile{f: f}, nil
}

// Delete removes a file.
func (fs *DiskFS) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound(path)
		}
		return errors.IO("delete failed", err).WithPath(path)
	}
	return nil
}

// Exists reports whether a regular file is present at path.
func (fs *DiskFS) Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.IO("stat failed", err).WithPath(path)
	}
	return !info.IsDir(), nil
}

// DiskFile wraps an *os.File as a HostFile.
type DiskFile struct {
	f *os.File
}

// Read reads up to len(p) bytes at the cursor. EOF maps to 0, nil.
func (d *DiskFile) Read(p []byte) (int, error) {
	n, err := d.f.Read(p)
	if err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, errors.IO("read failed", err)
	}
	return n, nil
}

// Write writes p at the cursor.
func (d *DiskFile) Write(p []byte) (int, error) {
	n, err := d.f.Write(p)
	if err != nil {
		return n, errors.IO("write failed", err)
	}
	return n, nil
}

// Seek repositions the cursor.
func (d *DiskFile) Seek(offset int64, whence int) (int64, error) {
	pos, err := d.f.Seek(offset, whence)
	if err != nil {
		return pos, errors.InvalidArgument("seek failed").WithCause(err)
	}
	return pos, nil
}

// Size returns the file length.
func (d *DiskFile) Size() (int64, error) {
	info, err := d.f.Stat()
	if err != nil {
		return 0, errors.IO("stat failed", err)
	}
	return info.Size(), nil
}

// Sync flushes to stable storage.
func (d *DiskFile) Sync() error {
	if err := d.f.Sync(); err != nil {
		return errors.IO("sync failed", err)
	}
	return nil
}

// Close releases the descriptor. Closing twice is tolerated.
func (d *DiskFile) Close() error {
	if err := d.f.Close(); err != nil && !stderrors.Is(err, os.ErrClosed) {
		return errors.IO("close failed", err)
	}
	return nil
}
