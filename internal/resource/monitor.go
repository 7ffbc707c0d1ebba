// Package resource tracks per-container quota accounting and enforces the
// configured limits.
package resource

import (
	"sync"

	"github.com/containerfs/containerfs/pkg/errors"
	"github.com/containerfs/containerfs/pkg/types"
)

// Monitor tracks storage, memory, file and directory usage for one
// container. A limit of zero means unbounded for that dimension. All access
// is serialized by a single mutex.
type Monitor struct {
	mu        sync.Mutex
	limits    types.ResourceLimits
	usage     types.ResourceUsage
	observers []func(types.ResourceUsage)
}

// NewMonitor creates a monitor with the given limits and zero usage.
func NewMonitor(limits types.ResourceLimits) *Monitor {
	return &Monitor{limits: limits}
}

// Limits returns the configured limits.
func (m *Monitor) Limits() types.ResourceLimits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits
}

// CheckLimits reports whether applying the deltas would exceed any non-zero
// limit and whether fileSize fits under the per-file cap. Violations return
// ResourceExhausted.
func (m *Monitor) CheckLimits(storageDelta, memoryDelta, fileCountDelta int64, fileSize uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.limits.MaxFileSize != 0 && fileSize > m.limits.MaxFileSize {
		return errors.Newf(errors.KindResourceExhausted,
			"file size %d exceeds limit %d", fileSize, m.limits.MaxFileSize)
	}
	if m.limits.MaxStorageSize != 0 && applyDelta(m.usage.StorageUsage, storageDelta) > m.limits.MaxStorageSize {
		return errors.Newf(errors.KindResourceExhausted,
			"storage usage would exceed limit %d", m.limits.MaxStorageSize)
	}
	if m.limits.MaxMemoryUsage != 0 && applyDelta(m.usage.MemoryUsage, memoryDelta) > m.limits.MaxMemoryUsage {
		return errors.Newf(errors.KindResourceExhausted,
			"memory usage would exceed limit %d", m.limits.MaxMemoryUsage)
	}
	if m.limits.MaxFileCount != 0 && applyDelta(m.usage.FileCount, fileCountDelta) > m.limits.MaxFileCount {
		return errors.Newf(errors.KindResourceExhausted,
			"file count would exceed limit %d", m.limits.MaxFileCount)
	}
	return nil
}

// CheckDirectoryLimit reports whether adding delta directories would exceed
// the directory cap.
func (m *Monitor) CheckDirectoryLimit(delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.limits.MaxDirectoryCount != 0 && applyDelta(m.usage.DirectoryCount, delta) > m.limits.MaxDirectoryCount {
		return errors.Newf(errors.KindResourceExhausted,
			"directory count would exceed limit %d", m.limits.MaxDirectoryCount)
	}
	return nil
}

// UpdateUsage applies the deltas to the usage counters, saturating at zero.
func (m *Monitor) UpdateUsage(storageDelta, memoryDelta, fileCountDelta int64) {
	m.mu.Lock()
	m.usage.StorageUsage = applyDelta(m.usage.StorageUsage, storageDelta)
	m.usage.MemoryUsage = applyDelta(m.usage.MemoryUsage, memoryDelta)
	m.usage.FileCount = applyDelta(m.usage.FileCount, fileCountDelta)
	snapshot := m.usage
	observers := m.observers
	m.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

// TrackDirectories applies a delta to the directory counter, saturating at
// zero.
func (m *Monitor) TrackDirectories(delta int64) {
	m.mu.Lock()
	m.usage.DirectoryCount = applyDelta(m.usage.DirectoryCount, delta)
	snapshot := m.usage
	observers := m.observers
	m.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

// SetUsage replaces all counters at once. Used after a metadata load to
// re-seed the monitor from the reconstructed tree.
func (m *Monitor) SetUsage(usage types.ResourceUsage) {
	m.mu.Lock()
	m.usage = usage
	snapshot := m.usage
	observers := m.observers
	m.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

// GetUsage returns a snapshot of the current counters.
func (m *Monitor) GetUsage() types.ResourceUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// Observe registers a callback invoked after every usage mutation.
func (m *Monitor) Observe(fn func(types.ResourceUsage)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// applyDelta adds a signed delta to an unsigned counter, saturating at zero.
func applyDelta(current uint64, delta int64) uint64 {
	if delta >= 0 {
		return current + uint64(delta)
	}
	dec := uint64(-delta)
	if dec >= current {
		return 0
	}
	return current - dec
}
