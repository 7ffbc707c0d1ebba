package types

// File is one open handle on a container file. Reads and writes go through
// an in-memory plaintext buffer; Flush encrypts and persists the buffer.
//
// Read returns 0 with a nil error at end of file. Close flushes any dirty
// state and is idempotent; every other operation on a closed handle fails.
type File interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Tell() (int64, error)
	Flush() error
	Close() error
	Info() (FileInfo, error)
}

// FileSystem is the container-backed virtual file system. Paths are treated
// as absolute and are normalized at the boundary.
type FileSystem interface {
	// File operations
	OpenFile(path string, mode FileMode) (File, error)
	CreateFile(path string) error
	DeleteFile(path string) error
	RenameFile(oldPath, newPath string) error
	FileExists(path string) (bool, error)
	GetFileInfo(path string) (FileInfo, error)

	// Directory operations
	CreateDirectory(path string) error
	DeleteDirectory(path string, recursive bool) error
	ListDirectory(path string) ([]FileInfo, error)
	DirectoryExists(path string) (bool, error)

	// Mount operations; the container engine does not support nesting and
	// reports NotSupported for both.
	Mount(mountPoint string, fs FileSystem) error
	Unmount(mountPoint string) error

	// Close flushes metadata and releases the host file.
	Close() error
}
