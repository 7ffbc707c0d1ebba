package hostfs

import (
	"io"
	"sync"

	"github.com/containerfs/containerfs/pkg/errors"
	"github.com/containerfs/containerfs/pkg/utils"
)

// MemoryFS keeps all host files in process memory. It backs tests and
// ephemeral containers.
type MemoryFS struct {
	mu    sync.Mutex
	files map[string]*memBuffer
}

// memBuffer is the shared byte store for one memory file. Handles alias it
// so a reopened file observes earlier writes.
type memBuffer struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryFS creates an empty in-memory host filesystem.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{files: make(map[string]*memBuffer)}
}

// Create creates or truncates a file.
func (fs *MemoryFS) Create(path string) error {
	key := utils.NormalizePath(path)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if buf, ok := fs.files[key]; ok {
		buf.mu.Lock()
		buf.data = nil
		buf.mu.Unlock()
		return nil
	}
	fs.files[key] = &memBuffer{}
	return nil
}

// Open opens an existing file.
func (fs *MemoryFS) Open(path string) (HostFile, error) {
	key := utils.NormalizePath(path)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	buf, ok := fs.files[key]
	if !ok {
		return nil, errors.NotFound(key)
	}
	return &MemoryFile{buf: buf}, nil
}

// Delete removes a file.
func (fs *MemoryFS) Delete(path string) error {
	key := utils.NormalizePath(path)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.files[key]; !ok {
		return errors.NotFound(key)
	}
	delete(fs.files, key)
	return nil
}

// Exists reports whether a file is present.
func (fs *MemoryFS) Exists(path string) (bool, error) {
	key := utils.NormalizePath(path)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, ok := fs.files[key]
	return ok, nil
}

// Bytes returns a copy of a file's current contents. Test helper.
func (fs *MemoryFS) Bytes(path string) ([]byte, bool) {
	key := utils.NormalizePath(path)
	fs.mu.Lock()
	buf, ok := fs.files[key]
	fs.mu.Unlock()
	if !ok {
		return nil, false
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()
	out := make([]byte, len(buf.data))
	copy(out, buf.data)
	return out, true
}

// MemoryFile is one open handle on a memory-backed host file.
type MemoryFile struct {
	mu     sync.Mutex
	buf    *memBuffer
	pos    int64
	closed bool
}

// Read reads up to len(p) bytes at the cursor.
func (f *MemoryFile) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New(errors.KindIoError, "file is closed")
	}

	f.buf.mu.Lock()
	defer f.buf.mu.Unlock()
	if f.pos >= int64(len(f.buf.data)) {
		return 0, nil
	}
	n := copy(p, f.buf.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write writes p at the cursor, extending the buffer as needed.
func (f *MemoryFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New(errors.KindIoError, "file is closed")
	}

	f.buf.mu.Lock()
	defer f.buf.mu.Unlock()
	end := f.pos + int64(len(p))
	if end > int64(len(f.buf.data)) {
		grown := make([]byte, end)
		copy(grown, f.buf.data)
		f.buf.data = grown
	}
	copy(f.buf.data[f.pos:end], p)
	f.pos = end
	return len(p), nil
}

// Seek repositions the cursor.
func (f *MemoryFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New(errors.KindIoError, "file is closed")
	}

	f.buf.mu.Lock()
	size := int64(len(f.buf.data))
	f.buf.mu.Unlock()

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.pos + offset
	case io.SeekEnd:
		next = size + offset
	default:
		return 0, errors.InvalidArgument("invalid whence")
	}
	if next < 0 {
		return 0, errors.InvalidArgument("negative seek position")
	}
	f.pos = next
	return next, nil
}

// Size returns the current buffer length.
func (f *MemoryFile) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New(errors.KindIoError, "file is closed")
	}

	f.buf.mu.Lock()
	defer f.buf.mu.Unlock()
	return int64(len(f.buf.data)), nil
}

// Sync is a no-op for memory files.
func (f *MemoryFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New(errors.KindIoError, "file is closed")
	}
	return nil
}

// Close marks the handle closed. The backing buffer stays alive.
func (f *MemoryFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
