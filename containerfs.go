// Package containerfs assembles the encrypted container virtual file
// system: a single host file embedding a hierarchical file system whose
// every byte at rest is authenticated and encrypted.
package containerfs

import (
	"os"
	"path/filepath"

	"github.com/containerfs/containerfs/internal/config"
	"github.com/containerfs/containerfs/internal/container"
	"github.com/containerfs/containerfs/internal/crypto"
	"github.com/containerfs/containerfs/internal/hostfs"
	"github.com/containerfs/containerfs/internal/metrics"
	"github.com/containerfs/containerfs/pkg/errors"
	"github.com/containerfs/containerfs/pkg/types"
	"github.com/containerfs/containerfs/pkg/utils"
)

// Re-exported building blocks so callers can assemble custom stacks without
// reaching into internal packages.
type (
	// HostFS is the host file abstraction the container is stored in.
	HostFS = hostfs.HostFS
	// HostFile is a seekable random-access host file.
	HostFile = hostfs.HostFile
	// MetricsCollector records engine operation metrics.
	MetricsCollector = metrics.Collector
	// Configuration is the YAML-backed container configuration.
	Configuration = config.Configuration
)

// NewMemoryHost returns an in-memory host filesystem.
func NewMemoryHost() HostFS { return hostfs.NewMemoryFS() }

// NewDiskHost returns a disk-backed host filesystem.
func NewDiskHost() HostFS { return hostfs.NewDiskFS() }

// Options configures a container filesystem.
type Options struct {
	// ContainerPath locates the host file holding the container.
	ContainerPath string
	// Key is the 32-byte container key. Empty or all-zero keys make the
	// factory generate KEM material, persisting it to a sibling .key file.
	Key []byte
	// Host stores the container bytes; defaults to the disk backend.
	Host HostFS
	// SecurityLevel selects the HSM path.
	SecurityLevel types.SecurityLevel
	// Limits bounds the container's resource consumption; zero fields are
	// unbounded.
	Limits types.ResourceLimits
	// KEMMode enables the hybrid post-quantum provider ("Kyber512",
	// "Kyber768", "Kyber1024"); empty selects plain AES-256-GCM.
	KEMMode string
	// CBCFallback selects the confidentiality-only CBC construction
	// instead of GCM. File payloads then rely on their integrity hashes.
	CBCFallback bool
	// Creator is recorded in fresh container metadata.
	Creator string
	// LenientLoad logs a container integrity mismatch on load instead of
	// failing. Defaults to strict.
	LenientLoad bool
	// RecreateCorrupt deletes and recreates a container whose metadata
	// cannot be loaded. Intended for throwaway test containers.
	RecreateCorrupt bool
	// Logger receives structured logs; optional.
	Logger *utils.StructuredLogger
	// Metrics records operation metrics; optional.
	Metrics *MetricsCollector
}

// New opens or creates the container described by opts and returns it as a
// FileSystem.
func New(opts Options) (types.FileSystem, error) {
	if opts.ContainerPath == "" {
		return nil, errors.InvalidArgument("container path is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = utils.NewStructuredLogger(nil)
	}

	host := opts.Host
	if host == nil {
		host = hostfs.NewDiskFS()
	}

	var provider crypto.Provider
	var kem *crypto.HybridProvider
	switch {
	case opts.KEMMode != "":
		var err error
		kem, err = crypto.NewHybridProvider(opts.KEMMode)
		if err != nil {
			return nil, err
		}
		provider = kem
	case opts.CBCFallback:
		provider = crypto.NewCBCProvider()
	default:
		provider = crypto.NewAESProvider()
	}

	key, err := container.ResolveKey(host, opts.ContainerPath, opts.Key, kem, logger.WithComponent("factory"))
	if err != nil {
		return nil, err
	}

	return container.NewEngine(container.Options{
		ContainerPath:   opts.ContainerPath,
		Provider:        provider,
		Key:             key,
		Host:            host,
		SecurityLevel:   opts.SecurityLevel,
		Limits:          opts.Limits,
		Creator:         opts.Creator,
		LenientLoad:     opts.LenientLoad,
		RecreateCorrupt: opts.RecreateCorrupt,
		Logger:          logger,
		Metrics:         opts.Metrics,
	})
}

// NewFromConfig assembles a container filesystem from a validated
// configuration.
func NewFromConfig(cfg *Configuration) (types.FileSystem, error) {
	if cfg == nil {
		return nil, errors.InvalidArgument("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.InvalidArgument(err.Error())
	}

	level, _ := utils.ParseLogLevel(cfg.Logging.Level)
	format := utils.FormatText
	if cfg.Logging.Format == "json" {
		format = utils.FormatJSON
	}
	logger := utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:  level,
		Output: os.Stdout,
		Format: format,
	})

	var host HostFS
	switch cfg.Storage.Backend {
	case "", "disk":
		host = hostfs.NewDiskFS()
	case "memory":
		host = hostfs.NewMemoryFS()
	case "s3":
		return nil, errors.New(errors.KindInvalidArgument,
			"the s3 backend needs a client; construct it with hostfs.NewS3FS and pass it through Options.Host")
	}

	return New(Options{
		ContainerPath:   cfg.Container.Path,
		Host:            host,
		SecurityLevel:   cfg.SecurityLevel(),
		Limits:          cfg.Limits,
		KEMMode:         cfg.Container.KEMMode,
		Creator:         cfg.Container.Creator,
		LenientLoad:     cfg.Container.LenientLoad,
		RecreateCorrupt: cfg.Container.RecreateCorrupt,
		Logger:          logger,
		Metrics:         metrics.NewCollector(&cfg.Metrics),
	})
}

// KeyFilePath returns the sibling key file path the factory uses for a
// container opened without a key.
func KeyFilePath(containerPath string) string {
	return container.KeyFilePath(containerPath)
}

// DefaultContainerDir returns a per-user directory for containers created
// without an explicit location.
func DefaultContainerDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".containerfs")
}
