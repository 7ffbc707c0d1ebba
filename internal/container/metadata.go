package container

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/containerfs/containerfs/pkg/errors"
)

// Metadata is the per-container descriptor persisted in the container
// metadata region.
type Metadata struct {
	Version          uint32
	ContainerID      string
	Creator          string
	CreationTime     uint64
	LastModifiedTime uint64
	IntegrityHash    []byte
}

// NewMetadata composes a fresh descriptor with a random 32-hex container id
// and current timestamps.
func NewMetadata(creator string) Metadata {
	now := uint64(time.Now().Unix())
	return Metadata{
		Version:          1,
		ContainerID:      strings.ReplaceAll(uuid.New().String(), "-", ""),
		Creator:          creator,
		CreationTime:     now,
		LastModifiedTime: now,
	}
}

// Marshal serializes the descriptor: version, then the length-prefixed id,
// creator and hash around the two timestamps. All integers little-endian.
func (m *Metadata) Marshal() []byte {
	buf := make([]byte, 0, 4+4+len(m.ContainerID)+4+len(m.Creator)+8+8+4+len(m.IntegrityHash))
	buf = binary.LittleEndian.AppendUint32(buf, m.Version)
	buf = appendBytes(buf, []byte(m.ContainerID))
	buf = appendBytes(buf, []byte(m.Creator))
	buf = binary.LittleEndian.AppendUint64(buf, m.CreationTime)
	buf = binary.LittleEndian.AppendUint64(buf, m.LastModifiedTime)
	buf = appendBytes(buf, m.IntegrityHash)
	return buf
}

// MarshalForHash serializes the descriptor with the integrity hash field
// excluded, for computing the container integrity hash.
func (m *Metadata) MarshalForHash() []byte {
	stripped := *m
	stripped.IntegrityHash = nil
	return stripped.Marshal()
}

// UnmarshalMetadata parses a descriptor from buf.
func UnmarshalMetadata(buf []byte) (Metadata, error) {
	var m Metadata
	r := reader{buf: buf}

	m.Version = r.uint32()
	m.ContainerID = string(r.bytes())
	m.Creator = string(r.bytes())
	m.CreationTime = r.uint64()
	m.LastModifiedTime = r.uint64()
	m.IntegrityHash = r.bytes()

	if r.err != nil {
		return Metadata{}, errors.InvalidFormat("truncated container metadata").WithCause(r.err)
	}
	if m.CreationTime > m.LastModifiedTime {
		return Metadata{}, errors.InvalidFormat("creation time after last modification")
	}
	return m, nil
}

// appendBytes writes a u32 length prefix followed by the payload.
func appendBytes(buf, b []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// reader is a bounds-checked little-endian cursor over a byte slice. The
// first overrun poisons it; callers check err once at the end.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = errors.InvalidFormat("length overruns buffer")
	}
}

func (r *reader) uint8() uint8 {
	if r.err != nil || r.off+1 > len(r.buf) {
		r.fail()
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) uint32() uint32 {
	if r.err != nil || r.off+4 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) uint64() uint64 {
	if r.err != nil || r.off+8 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) bytes() []byte {
	n := r.uint32()
	if r.err != nil || r.off+int(n) > len(r.buf) || int(n) < 0 {
		r.fail()
		return nil
	}
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+int(n)])
	r.off += int(n)
	return out
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}
