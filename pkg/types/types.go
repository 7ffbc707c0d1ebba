package types

// FileMode controls how a container file handle is opened.
type FileMode int

const (
	// ModeRead opens an existing file for reading only.
	ModeRead FileMode = iota
	// ModeWrite opens a file for writing only; the handle starts from an
	// empty buffer and existing content is not loaded.
	ModeWrite
	// ModeReadWrite opens a file for both reading and writing.
	ModeReadWrite
	// ModeAppend opens a file for reading and writing with the cursor kept
	// by the caller at the end.
	ModeAppend
	// ModeCreate creates the file if absent and truncates it otherwise.
	ModeCreate
	// ModeCreateNew creates the file and fails if it already exists.
	ModeCreateNew
)

// String returns the string representation of the file mode.
func (m FileMode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeReadWrite:
		return "read_write"
	case ModeAppend:
		return "append"
	case ModeCreate:
		return "create"
	case ModeCreateNew:
		return "create_new"
	default:
		return "unknown"
	}
}

// Readable reports whether the mode permits reads.
func (m FileMode) Readable() bool {
	return m == ModeRead || m == ModeReadWrite || m == ModeAppend
}

// Writable reports whether the mode permits writes.
func (m FileMode) Writable() bool {
	return m != ModeRead
}

// Creates reports whether the mode may create a missing file.
func (m FileMode) Creates() bool {
	return m == ModeCreate || m == ModeCreateNew
}

// SecurityLevel selects how container keys and integrity hashes are handled.
type SecurityLevel uint32

const (
	// SecurityStandard uses the software crypto and hashing stack.
	SecurityStandard SecurityLevel = iota
	// SecurityHardwareBacked requests a hardware security module; the
	// engine falls back to software when none is present.
	SecurityHardwareBacked
)

// String returns the string representation of the security level.
func (s SecurityLevel) String() string {
	switch s {
	case SecurityStandard:
		return "standard"
	case SecurityHardwareBacked:
		return "hardware_backed"
	default:
		return "unknown"
	}
}

// ParseSecurityLevel parses a string security level.
func ParseSecurityLevel(s string) (SecurityLevel, bool) {
	switch s {
	case "", "standard":
		return SecurityStandard, true
	case "hardware_backed", "hardware-backed":
		return SecurityHardwareBacked, true
	default:
		return SecurityStandard, false
	}
}

// ResourceLimits bounds a container's resource consumption. A zero value
// means unbounded for that dimension.
type ResourceLimits struct {
	MaxStorageSize    uint64 `yaml:"max_storage_size"`
	MaxMemoryUsage    uint64 `yaml:"max_memory_usage"`
	MaxFileCount      uint64 `yaml:"max_file_count"`
	MaxFileSize       uint64 `yaml:"max_file_size"`
	MaxDirectoryCount uint64 `yaml:"max_directory_count"`
}

// ResourceUsage is a snapshot of a container's current resource consumption.
type ResourceUsage struct {
	StorageUsage   uint64 `json:"storage_usage"`
	MemoryUsage    uint64 `json:"memory_usage"`
	FileCount      uint64 `json:"file_count"`
	DirectoryCount uint64 `json:"directory_count"`
}

// FileInfo describes an entry in the container.
type FileInfo struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	Size         uint64 `json:"size"`
	IsDirectory  bool   `json:"is_directory"`
	CreatedTime  int64  `json:"created_time"`
	ModifiedTime int64  `json:"modified_time"`
	AccessedTime int64  `json:"accessed_time"`
}
