// Package hostfs provides the host file abstraction the container engine
// stores its bytes in, with memory-, disk- and S3-backed implementations.
package hostfs

import (
	"io"

	"github.com/containerfs/containerfs/pkg/errors"
)

// HostFile is a seekable random-access byte file. The engine brackets every
// access with an explicit Seek, so implementations only need a cursor.
type HostFile interface {
	// Read reads up to len(p) bytes at the cursor. Returns 0, nil at EOF.
	Read(p []byte) (int, error)
	// Write writes p at the cursor, extending the file as needed.
	Write(p []byte) (int, error)
	// Seek repositions the cursor, following io.Seeker semantics.
	Seek(offset int64, whence int) (int64, error)
	// Size returns the current file length.
	Size() (int64, error)
	// Sync flushes buffered bytes to the backing store.
	Sync() error
	// Close releases the file.
	Close() error
}

// HostFS creates, opens and deletes host files by path.
type HostFS interface {
	Create(path string) error
	Open(path string) (HostFile, error)
	Delete(path string) error
	Exists(path string) (bool, error)
}

// ReadFile opens path and returns its full contents.
func ReadFile(fs HostFS, path string) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	data := make([]byte, size)
	n, err := io.ReadFull(hostReader{f}, data)
	if err != nil && n != int(size) {
		return nil, errors.IO("short read", err)
	}
	return data[:n], nil
}

// WriteFile creates (or truncates) path and writes data to it.
func WriteFile(fs HostFS, path string, data []byte) error {
	if err := fs.Create(path); err != nil {
		return err
	}
	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// hostReader adapts a HostFile's EOF convention (0, nil) to io.Reader's.
type hostReader struct {
	f HostFile
}

func (r hostReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}
