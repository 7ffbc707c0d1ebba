// Package container implements the encrypted container engine: the on-disk
// format, the metadata tree and its persistence protocol, the per-open file
// object, and the public filesystem operations.
package container

import (
	"encoding/binary"

	"github.com/containerfs/containerfs/pkg/errors"
	"github.com/containerfs/containerfs/pkg/types"
)

const (
	// HeaderMagic is "HYVR" as stored in the header's first word.
	HeaderMagic uint32 = 0x48595652
	// HeaderVersion is the supported container format version.
	HeaderVersion uint32 = 1
	// HeaderSize is the fixed serialized header length at offset 0.
	HeaderSize = 60
	// metadataReserve is the space set aside for each of the two metadata
	// regions when a container is created, so they can grow without
	// clobbering the first file payload.
	metadataReserve = 1024
)

// Header is the fixed-layout record at host-file offset 0.
type Header struct {
	Magic                   uint32
	Version                 uint32
	MetadataOffset          uint64
	MetadataSize            uint64
	ContainerMetadataOffset uint64
	ContainerMetadataSize   uint64
	DataOffset              uint64
	DataSize                uint64
	SecurityLevel           uint32
}

// NewHeader composes the initial header for a fresh container, with both
// metadata regions sized to their reserve and the data region after them.
func NewHeader(level types.SecurityLevel) Header {
	h := Header{
		Magic:                   HeaderMagic,
		Version:                 HeaderVersion,
		ContainerMetadataOffset: HeaderSize,
		ContainerMetadataSize:   metadataReserve,
		SecurityLevel:           uint32(level),
	}
	h.MetadataOffset = h.ContainerMetadataOffset + h.ContainerMetadataSize
	h.MetadataSize = metadataReserve
	h.DataOffset = h.MetadataOffset + h.MetadataSize
	return h
}

// Marshal serializes the header into its fixed little-endian layout.
func (h *Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.MetadataOffset)
	binary.LittleEndian.PutUint64(buf[16:24], h.MetadataSize)
	binary.LittleEndian.PutUint64(buf[24:32], h.ContainerMetadataOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.ContainerMetadataSize)
	binary.LittleEndian.PutUint64(buf[40:48], h.DataOffset)
	binary.LittleEndian.PutUint64(buf[48:56], h.DataSize)
	binary.LittleEndian.PutUint32(buf[56:60], h.SecurityLevel)
	return buf
}

// UnmarshalHeader parses a header from buf.
func UnmarshalHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, errors.InvalidFormat("short container header")
	}
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	h.MetadataOffset = binary.LittleEndian.Uint64(buf[8:16])
	h.MetadataSize = binary.LittleEndian.Uint64(buf[16:24])
	h.ContainerMetadataOffset = binary.LittleEndian.Uint64(buf[24:32])
	h.ContainerMetadataSize = binary.LittleEndian.Uint64(buf[32:40])
	h.DataOffset = binary.LittleEndian.Uint64(buf[40:48])
	h.DataSize = binary.LittleEndian.Uint64(buf[48:56])
	h.SecurityLevel = binary.LittleEndian.Uint32(buf[56:60])
	return h, nil
}

// Validate checks the magic, version and offset invariants.
func (h *Header) Validate() error {
	if h.Magic != HeaderMagic {
		return errors.Newf(errors.KindInvalidFormat, "bad magic 0x%08x", h.Magic)
	}
	if h.Version != HeaderVersion {
		return errors.Newf(errors.KindInvalidFormat, "unsupported version %d", h.Version)
	}
	if h.ContainerMetadataOffset != HeaderSize {
		return errors.InvalidFormat("container metadata region does not follow the header")
	}
	if h.MetadataOffset != h.ContainerMetadataOffset+h.ContainerMetadataSize {
		return errors.InvalidFormat("metadata region does not follow the container metadata")
	}
	if h.DataOffset != h.MetadataOffset+h.MetadataSize {
		return errors.InvalidFormat("data region does not follow the metadata")
	}
	return nil
}
