package container

import (
	"bytes"
	"reflect"
	"testing"
)

func TestNewMetadata(t *testing.T) {
	m := NewMetadata("unit-test")

	if m.Version != 1 {
		t.Errorf("version = %d, want 1", m.Version)
	}
	if len(m.ContainerID) != 32 {
		t.Errorf("container id %q is not 32 hex characters", m.ContainerID)
	}
	for _, c := range m.ContainerID {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Errorf("container id contains non-hex character %q", c)
		}
	}
	if m.Creator != "unit-test" {
		t.Errorf("creator = %q", m.Creator)
	}
	if m.CreationTime == 0 || m.CreationTime > m.LastModifiedTime {
		t.Errorf("timestamps inconsistent: %d > %d", m.CreationTime, m.LastModifiedTime)
	}

	other := NewMetadata("unit-test")
	if other.ContainerID == m.ContainerID {
		t.Error("two containers received the same id")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	m := Metadata{
		Version:          1,
		ContainerID:      "0123456789abcdef0123456789abcdef",
		Creator:          "round-trip",
		CreationTime:     1700000000,
		LastModifiedTime: 1700000100,
		IntegrityHash:    bytes.Repeat([]byte{0xAB}, 32),
	}

	got, err := UnmarshalMetadata(m.Marshal())
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, m)
	}
}

func TestMetadataRoundTripEmptyFields(t *testing.T) {
	m := Metadata{
		Version:          1,
		CreationTime:     5,
		LastModifiedTime: 5,
	}

	got, err := UnmarshalMetadata(m.Marshal())
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.ContainerID != "" || got.Creator != "" || got.IntegrityHash != nil {
		t.Errorf("empty fields not preserved: %+v", got)
	}
}

func TestMarshalForHashExcludesHash(t *testing.T) {
	m := Metadata{
		Version:          1,
		ContainerID:      "id",
		CreationTime:     1,
		LastModifiedTime: 2,
		IntegrityHash:    []byte{1, 2, 3},
	}

	withHash := m.MarshalForHash()

	m.IntegrityHash = []byte{9, 9, 9, 9}
	if !bytes.Equal(withHash, m.MarshalForHash()) {
		t.Error("hash field leaked into MarshalForHash output")
	}
	if bytes.Equal(m.Marshal(), m.MarshalForHash()) {
		t.Error("Marshal and MarshalForHash should differ when a hash is set")
	}
}

func TestUnmarshalMetadataTruncated(t *testing.T) {
	m := NewMetadata("x")
	full := m.Marshal()

	for _, cut := range []int{0, 3, 7, len(full) / 2, len(full) - 1} {
		if _, err := UnmarshalMetadata(full[:cut]); err == nil {
			t.Errorf("expected error for truncation at %d", cut)
		}
	}
}

func TestUnmarshalMetadataRejectsTimeTravel(t *testing.T) {
	m := Metadata{
		Version:          1,
		CreationTime:     100,
		LastModifiedTime: 50,
	}
	if _, err := UnmarshalMetadata(m.Marshal()); err == nil {
		t.Error("expected error when creation time is after last modification")
	}
}
