package container

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/containerfs/containerfs/internal/crypto"
	"github.com/containerfs/containerfs/internal/hostfs"
	"github.com/containerfs/containerfs/internal/hsm"
	"github.com/containerfs/containerfs/internal/resource"
	"github.com/containerfs/containerfs/pkg/errors"
	"github.com/containerfs/containerfs/pkg/types"
	"github.com/containerfs/containerfs/pkg/utils"
)

// maxPayloadSize bounds the ciphertext length prefix read back from the
// data region. Anything outside (0, maxPayloadSize] routes through the
// prefix-less recovery path.
const maxPayloadSize = 100 * 1024 * 1024

// File is one open handle on a container file. It buffers the whole
// plaintext in memory; flush encrypts the buffer and rewrites the entry's
// payload in the host file.
type File struct {
	mu sync.Mutex

	path     string
	mode     types.FileMode
	entry    *Entry
	host     hostfs.HostFile
	ioMu     *sync.Mutex
	provider crypto.Provider
	key      []byte
	hsm      hsm.Module
	monitor  *resource.Monitor
	log      *utils.StructuredLogger

	buffer        []byte
	pos           int64
	dirty         bool
	open          bool
	decryptFailed bool
}

// newFile constructs a handle and, for readable modes, loads the entry's
// plaintext. Called with the engine lock held.
func newFile(path string, mode types.FileMode, entry *Entry, host hostfs.HostFile,
	ioMu *sync.Mutex, provider crypto.Provider, key []byte, module hsm.Module,
	monitor *resource.Monitor, log *utils.StructuredLogger) (*File, error) {

	f := &File{
		path:     path,
		mode:     mode,
		entry:    entry,
		host:     host,
		ioMu:     ioMu,
		provider: provider,
		key:      key,
		hsm:      module,
		monitor:  monitor,
		log:      log,
		open:     true,
	}

	if mode.Creates() {
		// fresh files start empty with no integrity hash
		entry.IntegrityHash = nil
		entry.Size = 0
		return f, nil
	}

	if mode == types.ModeWrite {
		// write mode starts from an empty buffer; the entry is only touched
		// on the next flush
		return f, nil
	}

	if err := f.loadContent(); err != nil {
		return nil, err
	}
	return f, nil
}

// Read copies up to len(p) bytes from the buffer at the cursor. At end of
// file it returns 0 with a nil error.
func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0, errors.New(errors.KindIoError, "file is closed").WithPath(f.path)
	}
	if f.decryptFailed {
		return 0, errors.New(errors.KindIoError, "content could not be decrypted").WithPath(f.path)
	}
	if !f.mode.Readable() {
		return 0, errors.InvalidArgument("file not opened for reading").WithPath(f.path)
	}

	if f.pos >= int64(len(f.buffer)) {
		return 0, nil
	}
	n := copy(p, f.buffer[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write replaces or extends the buffer at the cursor, then flushes so the
// bytes are durable before control returns. A cursor beyond the buffer end
// zero-extends the buffer first.
func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0, errors.New(errors.KindIoError, "file is closed").WithPath(f.path)
	}
	if !f.mode.Writable() {
		return 0, errors.PermissionDenied(f.path, "file not opened for writing")
	}

	newLen := int64(len(f.buffer))
	if end := f.pos + int64(len(p)); end > newLen {
		newLen = end
	}

	if f.monitor != nil {
		storageDelta := newLen - int64(f.entry.Size)
		if storageDelta < 0 {
			storageDelta = 0
		}
		if err := f.monitor.CheckLimits(storageDelta, 0, 0, uint64(newLen)); err != nil {
			return 0, err
		}
	}

	if f.pos > int64(len(f.buffer)) {
		grown := make([]byte, f.pos)
		copy(grown, f.buffer)
		f.buffer = grown
	}
	if end := f.pos + int64(len(p)); end > int64(len(f.buffer)) {
		grown := make([]byte, end)
		copy(grown, f.buffer)
		f.buffer = grown
	}
	copy(f.buffer[f.pos:], p)
	f.dirty = true

	if err := f.flushLocked(); err != nil {
		// buffer keeps the bytes and stays dirty; the cursor does not move
		return 0, err
	}

	f.pos += int64(len(p))
	return len(p), nil
}

// Seek repositions the cursor within the buffer.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0, errors.New(errors.KindIoError, "file is closed").WithPath(f.path)
	}

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.pos + offset
	case io.SeekEnd:
		next = int64(len(f.buffer)) + offset
	default:
		return 0, errors.InvalidArgument("invalid whence")
	}

	if next < 0 || next > int64(len(f.buffer)) {
		return 0, errors.InvalidArgument("seek position out of range")
	}
	f.pos = next
	return next, nil
}

// Tell returns the current cursor position.
func (f *File) Tell() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0, errors.New(errors.KindIoError, "file is closed").WithPath(f.path)
	}
	return f.pos, nil
}

// Flush encrypts the buffer and persists it at the entry's data offset.
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return errors.New(errors.KindIoError, "file is closed").WithPath(f.path)
	}
	return f.flushLocked()
}

func (f *File) flushLocked() error {
	if !f.dirty {
		return nil
	}

	oldSize := f.entry.Size

	if len(f.buffer) == 0 {
		// empty files carry no hash and no on-disk ciphertext body
		f.entry.IntegrityHash = nil
	} else {
		hash, err := f.hsm.CalculateIntegrityHash(f.buffer)
		if err != nil {
			return err
		}
		f.entry.IntegrityHash = hash

		ciphertext, err := f.provider.Encrypt(f.buffer, f.key)
		if err != nil {
			return err
		}

		f.ioMu.Lock()
		err = f.writePayload(ciphertext)
		f.ioMu.Unlock()
		if err != nil {
			return err
		}
	}

	f.entry.Size = uint64(len(f.buffer))
	f.entry.Timestamp = uint64(time.Now().Unix())
	f.dirty = false

	if f.monitor != nil {
		f.monitor.UpdateUsage(int64(f.entry.Size)-int64(oldSize), 0, 0)
	}
	return nil
}

// writePayload writes the length-prefixed ciphertext at the entry's data
// offset. Callers hold ioMu.
func (f *File) writePayload(ciphertext []byte) error {
	if _, err := f.host.Seek(int64(f.entry.DataOffset), io.SeekStart); err != nil {
		return errors.IO("seek to data offset failed", err).WithPath(f.path)
	}

	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(ciphertext)))
	if _, err := f.host.Write(prefix[:]); err != nil {
		return errors.IO("payload length write failed", err).WithPath(f.path)
	}
	if _, err := f.host.Write(ciphertext); err != nil {
		return errors.IO("payload write failed", err).WithPath(f.path)
	}
	if err := f.host.Sync(); err != nil {
		return errors.IO("host flush failed", err).WithPath(f.path)
	}
	return nil
}

// Close flushes dirty state and marks the handle closed. Closing twice is a
// no-op.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return nil
	}
	if f.dirty {
		if err := f.flushLocked(); err != nil {
			return err
		}
	}
	f.open = false
	return nil
}

// Info describes the open file.
func (f *File) Info() (types.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return types.FileInfo{}, errors.New(errors.KindIoError, "file is closed").WithPath(f.path)
	}
	ts := int64(f.entry.Timestamp)
	return types.FileInfo{
		Name:         f.entry.Name,
		Path:         f.path,
		Size:         uint64(len(f.buffer)),
		IsDirectory:  false,
		CreatedTime:  ts,
		ModifiedTime: ts,
		AccessedTime: ts,
	}, nil
}

// loadContent reads, decrypts and verifies the entry's payload into the
// buffer. A decryption failure leaves the handle open but poisoned; reads
// then fail with IoError.
func (f *File) loadContent() error {
	if f.entry.Size == 0 {
		f.buffer = nil
		return nil
	}

	f.ioMu.Lock()
	ciphertext, err := f.readPayload()
	f.ioMu.Unlock()
	if err != nil {
		return err
	}

	plaintext, err := f.provider.Decrypt(ciphertext, f.key)
	if err != nil {
		f.log.Error("payload decryption failed", map[string]interface{}{
			"path": f.path,
		})
		f.decryptFailed = true
		f.buffer = nil
		return nil
	}

	if len(f.entry.IntegrityHash) > 0 {
		ok, verr := f.hsm.VerifyIntegrity(plaintext, f.entry.IntegrityHash)
		if verr == nil && !ok {
			// lenient: report and keep the decrypted bytes
			f.log.Warn("integrity hash mismatch", map[string]interface{}{
				"path": f.path,
			})
		}
	}

	// reconcile with the tree's view of the file length
	if uint64(len(plaintext)) != f.entry.Size {
		adjusted := make([]byte, f.entry.Size)
		copy(adjusted, plaintext)
		plaintext = adjusted
	}
	f.buffer = plaintext
	return nil
}

// readPayload reads the length-prefixed ciphertext at the entry's data
// offset, falling back to a size-guided read for payloads written without a
// prefix. Callers hold ioMu.
func (f *File) readPayload() ([]byte, error) {
	if _, err := f.host.Seek(int64(f.entry.DataOffset), io.SeekStart); err != nil {
		return nil, errors.IO("seek to data offset failed", err).WithPath(f.path)
	}

	var prefix [8]byte
	n, err := f.host.Read(prefix[:])
	if err != nil {
		return nil, errors.IO("payload length read failed", err).WithPath(f.path)
	}
	if n != len(prefix) {
		return nil, errors.InvalidFormat("truncated payload length").WithPath(f.path)
	}

	length := binary.LittleEndian.Uint64(prefix[:])
	if length == 0 || length > maxPayloadSize {
		return f.readPayloadFallback()
	}

	ciphertext := make([]byte, length)
	read := 0
	for read < len(ciphertext) {
		n, err := f.host.Read(ciphertext[read:])
		if err != nil {
			return nil, errors.IO("payload read failed", err).WithPath(f.path)
		}
		if n == 0 {
			return nil, errors.InvalidFormat("truncated payload").WithPath(f.path)
		}
		read += n
	}
	return ciphertext, nil
}

// readPayloadFallback tolerates older payloads written without a length
// prefix by reading the entry size plus encryption overhead headroom.
func (f *File) readPayloadFallback() ([]byte, error) {
	f.log.Warn("payload length prefix invalid, using size-guided fallback", map[string]interface{}{
		"path": f.path,
		"size": f.entry.Size,
	})

	if _, err := f.host.Seek(int64(f.entry.DataOffset), io.SeekStart); err != nil {
		return nil, errors.IO("seek to data offset failed", err).WithPath(f.path)
	}

	ciphertext := make([]byte, f.entry.Size+128)
	read := 0
	for read < len(ciphertext) {
		n, err := f.host.Read(ciphertext[read:])
		if err != nil {
			return nil, errors.IO("payload read failed", err).WithPath(f.path)
		}
		if n == 0 {
			break
		}
		read += n
	}
	return bytes.Clone(ciphertext[:read]), nil
}
