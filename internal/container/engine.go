package container

import (
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/containerfs/containerfs/internal/crypto"
	"github.com/containerfs/containerfs/internal/hostfs"
	"github.com/containerfs/containerfs/internal/hsm"
	"github.com/containerfs/containerfs/internal/metrics"
	"github.com/containerfs/containerfs/internal/resource"
	"github.com/containerfs/containerfs/pkg/errors"
	"github.com/containerfs/containerfs/pkg/types"
	"github.com/containerfs/containerfs/pkg/utils"
)

const engineComponent = "engine"

// Options configures a container engine.
type Options struct {
	// ContainerPath locates the host file holding the container.
	ContainerPath string
	// Provider encrypts and decrypts every region and payload.
	Provider crypto.Provider
	// Key is the 32-byte container key.
	Key []byte
	// Host stores the container bytes.
	Host hostfs.HostFS
	// SecurityLevel selects the HSM path.
	SecurityLevel types.SecurityLevel
	// Limits bounds the container's resource consumption.
	Limits types.ResourceLimits
	// Creator is recorded in fresh container metadata.
	Creator string
	// LenientLoad retries a failed strict metadata load, logging integrity
	// mismatches instead of failing.
	LenientLoad bool
	// RecreateCorrupt deletes and recreates a container whose metadata
	// cannot be loaded. Intended for throwaway test containers.
	RecreateCorrupt bool
	// Logger receives structured engine logs; a silent default is used when
	// nil.
	Logger *utils.StructuredLogger
	// Metrics records operation metrics; optional.
	Metrics *metrics.Collector
}

// Engine is the encrypted container virtual file system. One exclusive lock
// serializes every tree and metadata operation; a second lock orders host
// file access so open handles can flush without re-entering the tree lock.
type Engine struct {
	mu   sync.Mutex
	ioMu sync.Mutex

	path     string
	provider crypto.Provider
	key      []byte
	hostFS   hostfs.HostFS
	host     hostfs.HostFile

	header Header
	meta   Metadata
	root   *Entry
	cache  map[string]*Entry

	hsm         hsm.Module
	monitor     *resource.Monitor
	metrics     *metrics.Collector
	log         *utils.StructuredLogger
	lenient     bool
	recreate    bool
	level       types.SecurityLevel
	creator     string
	initialized bool
	closed      bool
}

// NewEngine opens or creates the container at opts.ContainerPath.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, errors.InvalidArgument("encryption provider is required")
	}
	if len(opts.Key) != crypto.KeySize {
		return nil, errors.Newf(errors.KindInvalidArgument, "key must be %d bytes", crypto.KeySize)
	}
	if opts.Host == nil {
		return nil, errors.InvalidArgument("host filesystem is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
			Level:  utils.ERROR,
			Output: io.Discard,
		})
	}
	creator := opts.Creator
	if creator == "" {
		creator = "containerfs"
	}

	e := &Engine{
		path:     opts.ContainerPath,
		provider: opts.Provider,
		key:      append([]byte(nil), opts.Key...),
		hostFS:   opts.Host,
		hsm:      hsm.New(opts.SecurityLevel, logger),
		monitor:  resource.NewMonitor(opts.Limits),
		metrics:  opts.Metrics,
		log:      logger.WithComponent(engineComponent),
		lenient:  opts.LenientLoad,
		recreate: opts.RecreateCorrupt,
		level:    opts.SecurityLevel,
		creator:  creator,
		cache:    make(map[string]*Entry),
	}

	if err := e.initialize(); err != nil {
		return nil, err
	}
	e.initialized = true
	return e, nil
}

// initialize probes for an existing container and either loads or creates
// it.
func (e *Engine) initialize() error {
	exists, err := e.hostFS.Exists(e.path)
	if err != nil {
		return err
	}
	if !exists {
		// the engine may have been handed a relative path
		if abs, aerr := filepath.Abs(e.path); aerr == nil && abs != e.path {
			if found, ferr := e.hostFS.Exists(abs); ferr == nil && found {
				e.path = abs
				exists = true
			}
		}
	}

	if exists {
		return e.openExisting()
	}
	return e.createNew()
}

func (e *Engine) openExisting() error {
	e.log.Info("opening existing container", map[string]interface{}{"path": e.path})

	host, err := e.hostFS.Open(e.path)
	if err != nil {
		return err
	}
	e.host = host

	headerBuf := make([]byte, HeaderSize)
	e.ioMu.Lock()
	_, serr := host.Seek(0, io.SeekStart)
	n, rerr := host.Read(headerBuf)
	e.ioMu.Unlock()
	if serr != nil || rerr != nil || n != HeaderSize {
		return e.handleCorrupt(errors.InvalidFormat("container header unreadable").WithPath(e.path))
	}

	header, err := UnmarshalHeader(headerBuf)
	if err != nil {
		return e.handleCorrupt(err)
	}
	if err := header.Validate(); err != nil {
		return e.handleCorrupt(err)
	}
	e.header = header

	if err := e.loadMetadata(true); err != nil {
		if !e.lenient {
			return e.handleCorrupt(err)
		}
		e.log.Warn("strict metadata load failed, retrying lenient", map[string]interface{}{
			"error": err.Error(),
		})
		if err := e.loadMetadata(false); err != nil {
			return e.handleCorrupt(err)
		}
	}

	// re-seed the quota counters from the reconstructed tree
	files, dirs, storage := e.root.CountUsage()
	e.monitor.SetUsage(types.ResourceUsage{
		StorageUsage:   storage,
		FileCount:      files,
		DirectoryCount: dirs,
	})
	e.publishUsage()
	return nil
}

// handleCorrupt implements the recreate-on-corruption escape hatch; without
// it, invalid metadata aborts the open.
func (e *Engine) handleCorrupt(cause error) error {
	if !e.recreate {
		return cause
	}

	e.log.Warn("recreating corrupt container", map[string]interface{}{
		"path":  e.path,
		"cause": cause.Error(),
	})
	if e.host != nil {
		_ = e.host.Close()
		e.host = nil
	}
	if err := e.hostFS.Delete(e.path); err != nil {
		return cause
	}
	return e.createNew()
}

func (e *Engine) createNew() error {
	e.log.Info("creating new container", map[string]interface{}{"path": e.path})

	if err := e.hostFS.Create(e.path); err != nil {
		return err
	}
	host, err := e.hostFS.Open(e.path)
	if err != nil {
		return err
	}
	e.host = host

	now := uint64(time.Now().Unix())
	e.header = NewHeader(e.level)
	e.root = NewRoot(now)
	e.meta = NewMetadata(e.creator)
	e.rebuildCache()

	if err := e.saveMetadata(); err != nil {
		return errors.New(errors.KindInitializationFailed, "initial metadata save failed").WithCause(err)
	}

	// hold the metadata reserve so the first payload lands past it
	if err := e.reserveDataRegion(); err != nil {
		return errors.New(errors.KindInitializationFailed, "data region reservation failed").WithCause(err)
	}
	return nil
}

// reserveDataRegion zero-extends the host file to the end of the reserved
// metadata space, so payload allocation at the tail cannot collide with
// metadata growth.
func (e *Engine) reserveDataRegion() error {
	reserveEnd := int64(HeaderSize + 2*metadataReserve)

	e.ioMu.Lock()
	defer e.ioMu.Unlock()

	size, err := e.host.Size()
	if err != nil {
		return err
	}
	if size >= reserveEnd {
		return nil
	}
	if _, err := e.host.Seek(size, io.SeekStart); err != nil {
		return err
	}
	if _, err := e.host.Write(make([]byte, reserveEnd-size)); err != nil {
		return err
	}
	return e.host.Sync()
}

// saveMetadata serializes, encrypts and writes both metadata regions and
// the header. A successful save is the engine's commit point. Callers hold
// the engine lock (or are inside initialization).
func (e *Engine) saveMetadata() error {
	e.meta.LastModifiedTime = uint64(time.Now().Unix())

	treeBytes := e.root.Marshal(nil)
	encTree, err := e.provider.Encrypt(treeBytes, e.key)
	if err != nil {
		return err
	}

	// fix the metadata length before hashing: the hash field is always the
	// digest size once computed
	if len(e.meta.IntegrityHash) != hsm.HashSize {
		e.meta.IntegrityHash = make([]byte, hsm.HashSize)
	}
	encMetaProbe, err := e.provider.Encrypt(e.meta.Marshal(), e.key)
	if err != nil {
		return err
	}

	e.header.ContainerMetadataOffset = HeaderSize
	e.header.ContainerMetadataSize = uint64(len(encMetaProbe))
	e.header.MetadataOffset = e.header.ContainerMetadataOffset + e.header.ContainerMetadataSize
	e.header.MetadataSize = uint64(len(encTree))
	e.header.DataOffset = e.header.MetadataOffset + e.header.MetadataSize

	e.ioMu.Lock()
	defer e.ioMu.Unlock()

	if size, err := e.host.Size(); err == nil && uint64(size) > e.header.DataOffset {
		e.header.DataSize = uint64(size) - e.header.DataOffset
	} else {
		e.header.DataSize = 0
	}

	if err := e.updateIntegrityHash(); err != nil {
		return err
	}

	encMeta, err := e.provider.Encrypt(e.meta.Marshal(), e.key)
	if err != nil {
		return err
	}
	// same plaintext length, same ciphertext length: the offsets stand
	if uint64(len(encMeta)) != e.header.ContainerMetadataSize {
		return errors.InvalidFormat("container metadata size drifted during save")
	}

	if _, err := e.host.Seek(0, io.SeekStart); err != nil {
		return errors.IO("seek to header failed", err)
	}
	if _, err := e.host.Write(e.header.Marshal()); err != nil {
		return errors.IO("header write failed", err)
	}
	if _, err := e.host.Write(encMeta); err != nil {
		return errors.IO("container metadata write failed", err)
	}
	if _, err := e.host.Write(encTree); err != nil {
		return errors.IO("metadata write failed", err)
	}
	if err := e.host.Sync(); err != nil {
		return errors.IO("host flush failed", err)
	}

	e.log.Debug("metadata saved", map[string]interface{}{
		"tree_bytes": len(treeBytes),
		"regions":    []uint64{e.header.ContainerMetadataSize, e.header.MetadataSize},
	})
	return nil
}

// updateIntegrityHash binds the serialized header and metadata (hash field
// excluded) into the metadata record. Raw struct memory is never hashed.
func (e *Engine) updateIntegrityHash() error {
	input := append(e.header.Marshal(), e.meta.MarshalForHash()...)
	hash, err := e.hsm.CalculateIntegrityHash(input)
	if err != nil {
		return err
	}
	e.meta.IntegrityHash = hash
	return nil
}

// verifyIntegrityHash recomputes the container hash and compares it against
// the stored one.
func (e *Engine) verifyIntegrityHash() (bool, error) {
	input := append(e.header.Marshal(), e.meta.MarshalForHash()...)
	return e.hsm.VerifyIntegrity(input, e.meta.IntegrityHash)
}

// loadMetadata reads and decrypts both regions, rebuilds the tree and path
// cache, and verifies the container hash. In strict mode a hash mismatch
// fails the load.
func (e *Engine) loadMetadata(strict bool) error {
	e.ioMu.Lock()
	treeRegion, terr := e.readRegion(e.header.MetadataOffset, e.header.MetadataSize)
	metaRegion, merr := e.readRegion(e.header.ContainerMetadataOffset, e.header.ContainerMetadataSize)
	e.ioMu.Unlock()
	if terr != nil {
		return terr
	}
	if merr != nil {
		return merr
	}

	treeBytes, err := e.provider.Decrypt(treeRegion, e.key)
	if err != nil {
		return errors.InvalidFormat("metadata region decryption failed").WithCause(err)
	}
	root, err := UnmarshalEntry(treeBytes)
	if err != nil {
		return err
	}
	if !root.IsDirectory() || root.Name != "" {
		return errors.InvalidFormat("root entry is not an unnamed directory")
	}

	metaBytes, err := e.provider.Decrypt(metaRegion, e.key)
	if err != nil {
		return errors.InvalidFormat("container metadata decryption failed").WithCause(err)
	}
	meta, err := UnmarshalMetadata(metaBytes)
	if err != nil {
		return err
	}

	e.root = root
	e.meta = meta
	e.rebuildCache()

	if len(meta.IntegrityHash) > 0 {
		ok, err := e.verifyIntegrityHash()
		if err != nil {
			return err
		}
		if !ok {
			if strict {
				return errors.InvalidFormat("container integrity hash mismatch")
			}
			e.log.Warn("container integrity hash mismatch", map[string]interface{}{
				"path": e.path,
			})
		}
	}
	return nil
}

// readRegion reads size bytes at offset. Callers hold ioMu.
func (e *Engine) readRegion(offset, size uint64) ([]byte, error) {
	if _, err := e.host.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, errors.IO("region seek failed", err)
	}
	buf := make([]byte, size)
	read := 0
	for read < len(buf) {
		n, err := e.host.Read(buf[read:])
		if err != nil {
			return nil, errors.IO("region read failed", err)
		}
		if n == 0 {
			return nil, errors.InvalidFormat("truncated region")
		}
		read += n
	}
	return buf, nil
}

// rebuildCache repopulates the path cache by preorder traversal.
func (e *Engine) rebuildCache() {
	e.cache = make(map[string]*Entry)
	if e.root == nil {
		return
	}
	e.root.Walk("/", func(path string, entry *Entry) {
		e.cache[path] = entry
	})
}

func (e *Engine) publishUsage() {
	if e.metrics == nil {
		return
	}
	u := e.monitor.GetUsage()
	e.metrics.SetUsage(u.StorageUsage, u.MemoryUsage, u.FileCount, u.DirectoryCount)
}

// record wraps an operation with metrics bookkeeping.
func (e *Engine) record(op string, start time.Time, size int64, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordOperation(op, time.Since(start), size, err == nil)
	if err != nil {
		e.metrics.RecordError(op, string(errors.KindOf(err)))
	}
}

// getEntry resolves a normalized path to its entry, optionally creating
// missing intermediate directories. Callers hold the engine lock.
func (e *Engine) getEntry(path string, createDirs bool) (*Entry, error) {
	if path == "/" {
		return e.root, nil
	}
	if cached, ok := e.cache[path]; ok {
		return cached, nil
	}

	current := e.root
	currentPath := "/"
	for _, segment := range utils.SplitPath(path) {
		if !current.IsDirectory() {
			return nil, errors.NotADirectory(currentPath)
		}
		next := current.Child(segment)
		if next == nil {
			if !createDirs {
				return nil, errors.NotFound(path)
			}
			if err := e.monitor.CheckDirectoryLimit(1); err != nil {
				return nil, err
			}
			next = &Entry{
				Kind:      KindDirectory,
				Name:      segment,
				Timestamp: uint64(time.Now().Unix()),
			}
			current.AddChild(next)
			e.monitor.TrackDirectories(1)
			e.cache[utils.JoinPaths(currentPath, segment)] = next
		}
		current = next
		currentPath = utils.JoinPaths(currentPath, segment)
	}

	e.cache[path] = current
	return current, nil
}

// createEntry creates a file or directory entry at path, creating missing
// parents. Callers hold the engine lock.
func (e *Engine) createEntry(path string, kind EntryKind) (*Entry, error) {
	if path == "/" {
		return nil, errors.AlreadyExists("/")
	}
	if _, ok := e.cache[path]; ok {
		return nil, errors.AlreadyExists(path)
	}

	parent, err := e.getEntry(utils.ParentPath(path), true)
	if err != nil {
		return nil, err
	}
	if !parent.IsDirectory() {
		return nil, errors.NotADirectory(utils.ParentPath(path))
	}
	if existing := parent.Child(utils.Filename(path)); existing != nil {
		return nil, errors.AlreadyExists(path)
	}

	if kind == KindFile {
		if err := e.monitor.CheckLimits(0, 0, 1, 0); err != nil {
			return nil, err
		}
	} else {
		if err := e.monitor.CheckDirectoryLimit(1); err != nil {
			return nil, err
		}
	}

	entry := &Entry{
		Kind:      kind,
		Name:      utils.Filename(path),
		Timestamp: uint64(time.Now().Unix()),
	}

	if kind == KindFile {
		// payload space is allocated at the current host-file tail
		e.ioMu.Lock()
		size, serr := e.host.Size()
		e.ioMu.Unlock()
		if serr != nil {
			return nil, serr
		}
		entry.DataOffset = uint64(size)
	}

	parent.AddChild(entry)
	e.cache[path] = entry

	if kind == KindFile {
		e.monitor.UpdateUsage(0, 0, 1)
	} else {
		e.monitor.TrackDirectories(1)
	}
	e.publishUsage()
	return entry, nil
}

// evictSubtree drops path and every descendant from the cache.
func (e *Engine) evictSubtree(path string, entry *Entry) {
	entry.Walk(path, func(p string, _ *Entry) {
		delete(e.cache, p)
	})
}

// cacheSubtree inserts path and every descendant into the cache.
func (e *Engine) cacheSubtree(path string, entry *Entry) {
	entry.Walk(path, func(p string, en *Entry) {
		e.cache[p] = en
	})
}

// OpenFile opens a handle on the file at path. Create modes create the
// entry on demand; CreateNew fails on an existing one.
func (e *Engine) OpenFile(path string, mode types.FileMode) (types.File, error) {
	start := time.Now()
	file, err := e.openFile(path, mode)
	e.record("open_file", start, 0, err)
	return file, err
}

func (e *Engine) openFile(path string, mode types.FileMode) (types.File, error) {
	if err := utils.ValidatePath(path); err != nil {
		return nil, err
	}
	normalized := utils.NormalizePath(path)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New(errors.KindIoError, "engine is closed")
	}

	entry, err := e.getEntry(normalized, false)
	created := false
	switch {
	case err == nil:
		if mode == types.ModeCreateNew {
			return nil, errors.AlreadyExists(normalized)
		}
		if entry.IsDirectory() {
			return nil, errors.NotAFile(normalized)
		}
	case errors.IsKind(err, errors.KindFileNotFound) && mode.Creates():
		entry, err = e.createEntry(normalized, KindFile)
		if err != nil {
			return nil, err
		}
		created = true
	default:
		return nil, err
	}

	file, err := newFile(normalized, mode, entry, e.host, &e.ioMu,
		e.provider, e.key, e.hsm, e.monitor, e.log)
	if err != nil {
		return nil, err
	}

	if created {
		if err := e.saveMetadata(); err != nil {
			return nil, err
		}
	}
	return file, nil
}

// CreateFile creates an empty file at path, materializing missing parent
// directories.
func (e *Engine) CreateFile(path string) error {
	start := time.Now()
	err := e.createFile(path)
	e.record("create_file", start, 0, err)
	return err
}

func (e *Engine) createFile(path string) error {
	if err := utils.ValidatePath(path); err != nil {
		return err
	}
	normalized := utils.NormalizePath(path)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New(errors.KindIoError, "engine is closed")
	}

	if _, err := e.createEntry(normalized, KindFile); err != nil {
		return err
	}
	return e.saveMetadata()
}

// DeleteFile removes the file at path.
func (e *Engine) DeleteFile(path string) error {
	start := time.Now()
	err := e.deleteFile(path)
	e.record("delete_file", start, 0, err)
	return err
}

func (e *Engine) deleteFile(path string) error {
	if err := utils.ValidatePath(path); err != nil {
		return err
	}
	normalized := utils.NormalizePath(path)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New(errors.KindIoError, "engine is closed")
	}

	entry, err := e.getEntry(normalized, false)
	if err != nil {
		return err
	}
	if entry.IsDirectory() {
		return errors.NotAFile(normalized)
	}

	parent := entry.Parent
	if parent == nil {
		return errors.InvalidArgument("entry has no parent").WithPath(normalized)
	}
	parent.RemoveChild(entry)
	delete(e.cache, normalized)

	e.monitor.UpdateUsage(-int64(entry.Size), 0, -1)
	e.publishUsage()
	return e.saveMetadata()
}

// RenameFile moves the entry at oldPath to newPath. The destination must
// not exist; its parent must.
func (e *Engine) RenameFile(oldPath, newPath string) error {
	start := time.Now()
	err := e.renameFile(oldPath, newPath)
	e.record("rename_file", start, 0, err)
	return err
}

func (e *Engine) renameFile(oldPath, newPath string) error {
	if err := utils.ValidatePath(oldPath); err != nil {
		return err
	}
	if err := utils.ValidatePath(newPath); err != nil {
		return err
	}
	from := utils.NormalizePath(oldPath)
	to := utils.NormalizePath(newPath)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New(errors.KindIoError, "engine is closed")
	}

	if from == "/" {
		return errors.PermissionDenied("/", "cannot rename the root directory")
	}
	entry, err := e.getEntry(from, false)
	if err != nil {
		return err
	}
	if _, err := e.getEntry(to, false); err == nil {
		return errors.AlreadyExists(to)
	}

	newParent, err := e.getEntry(utils.ParentPath(to), false)
	if err != nil {
		return err
	}
	if !newParent.IsDirectory() {
		return errors.NotADirectory(utils.ParentPath(to))
	}

	e.evictSubtree(from, entry)
	entry.Parent.RemoveChild(entry)
	entry.Name = utils.Filename(to)
	newParent.AddChild(entry)
	e.cacheSubtree(to, entry)

	return e.saveMetadata()
}

// FileExists reports whether a file exists at path. Resolution errors
// report false.
func (e *Engine) FileExists(path string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, errors.New(errors.KindIoError, "engine is closed")
	}

	entry, err := e.getEntry(utils.NormalizePath(path), false)
	if err != nil {
		return false, nil
	}
	return !entry.IsDirectory(), nil
}

// GetFileInfo describes the entry at path.
func (e *Engine) GetFileInfo(path string) (types.FileInfo, error) {
	normalized := utils.NormalizePath(path)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return types.FileInfo{}, errors.New(errors.KindIoError, "engine is closed")
	}

	entry, err := e.getEntry(normalized, false)
	if err != nil {
		return types.FileInfo{}, err
	}
	return entryInfo(normalized, entry), nil
}

// CreateDirectory creates a directory at path, including intermediates.
func (e *Engine) CreateDirectory(path string) error {
	start := time.Now()
	err := e.createDirectory(path)
	e.record("create_directory", start, 0, err)
	return err
}

func (e *Engine) createDirectory(path string) error {
	if err := utils.ValidatePath(path); err != nil {
		return err
	}
	normalized := utils.NormalizePath(path)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New(errors.KindIoError, "engine is closed")
	}

	if _, err := e.createEntry(normalized, KindDirectory); err != nil {
		return err
	}
	return e.saveMetadata()
}

// DeleteDirectory removes the directory at path. Non-empty directories
// require recursive; the root is never deletable.
func (e *Engine) DeleteDirectory(path string, recursive bool) error {
	start := time.Now()
	err := e.deleteDirectory(path, recursive)
	e.record("delete_directory", start, 0, err)
	return err
}

func (e *Engine) deleteDirectory(path string, recursive bool) error {
	if err := utils.ValidatePath(path); err != nil {
		return err
	}
	normalized := utils.NormalizePath(path)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New(errors.KindIoError, "engine is closed")
	}

	if normalized == "/" {
		return errors.PermissionDenied("/", "cannot delete the root directory")
	}

	entry, err := e.getEntry(normalized, false)
	if err != nil {
		return err
	}
	if !entry.IsDirectory() {
		return errors.NotADirectory(normalized)
	}
	if len(entry.Children) > 0 && !recursive {
		return errors.PermissionDenied(normalized, "directory is not empty")
	}

	files, dirs, storage := entry.CountUsage()

	parent := entry.Parent
	if parent == nil {
		return errors.InvalidArgument("entry has no parent").WithPath(normalized)
	}
	parent.RemoveChild(entry)
	e.evictSubtree(normalized, entry)

	e.monitor.UpdateUsage(-int64(storage), 0, -int64(files))
	e.monitor.TrackDirectories(-int64(dirs) - 1)
	e.publishUsage()
	return e.saveMetadata()
}

// ListDirectory returns the direct children of the directory at path.
func (e *Engine) ListDirectory(path string) ([]types.FileInfo, error) {
	normalized := utils.NormalizePath(path)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New(errors.KindIoError, "engine is closed")
	}

	entry, err := e.getEntry(normalized, false)
	if err != nil {
		return nil, err
	}
	if !entry.IsDirectory() {
		return nil, errors.NotADirectory(normalized)
	}

	infos := make([]types.FileInfo, 0, len(entry.Children))
	for _, child := range entry.Children {
		infos = append(infos, entryInfo(utils.JoinPaths(normalized, child.Name), child))
	}
	return infos, nil
}

// DirectoryExists reports whether a directory exists at path. Resolution
// errors report false.
func (e *Engine) DirectoryExists(path string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, errors.New(errors.KindIoError, "engine is closed")
	}

	entry, err := e.getEntry(utils.NormalizePath(path), false)
	if err != nil {
		return false, nil
	}
	return entry.IsDirectory(), nil
}

// Mount is not supported by the container engine.
func (e *Engine) Mount(string, types.FileSystem) error {
	return errors.NotSupported("mount")
}

// Unmount is not supported by the container engine.
func (e *Engine) Unmount(string) error {
	return errors.NotSupported("unmount")
}

// VerifyIntegrity recomputes the container hash and compares it against the
// stored one.
func (e *Engine) VerifyIntegrity() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, errors.New(errors.KindIoError, "engine is closed")
	}
	if len(e.meta.IntegrityHash) == 0 {
		return false, nil
	}
	return e.verifyIntegrityHash()
}

// Metadata returns a copy of the container metadata record.
func (e *Engine) Metadata() Metadata {
	e.mu.Lock()
	defer e.mu.Unlock()

	meta := e.meta
	meta.IntegrityHash = append([]byte(nil), e.meta.IntegrityHash...)
	return meta
}

// ResourceUsage returns the monitor's current counters.
func (e *Engine) ResourceUsage() types.ResourceUsage {
	return e.monitor.GetUsage()
}

// SetResourceCallback registers a callback invoked after every usage
// mutation.
func (e *Engine) SetResourceCallback(fn func(types.ResourceUsage)) {
	e.monitor.Observe(fn)
}

// SaveMetadata forces a metadata commit outside the usual mutation points.
func (e *Engine) SaveMetadata() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New(errors.KindIoError, "engine is closed")
	}
	return e.saveMetadata()
}

// Close persists metadata and releases the host file. The engine is
// unusable afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var saveErr error
	if e.initialized {
		saveErr = e.saveMetadata()
	}
	if e.host != nil {
		if err := e.host.Close(); err != nil && saveErr == nil {
			saveErr = err
		}
	}
	return saveErr
}

func entryInfo(path string, entry *Entry) types.FileInfo {
	ts := int64(entry.Timestamp)
	return types.FileInfo{
		Name:         entry.Name,
		Path:         path,
		Size:         entry.Size,
		IsDirectory:  entry.IsDirectory(),
		CreatedTime:  ts,
		ModifiedTime: ts,
		AccessedTime: ts,
	}
}
