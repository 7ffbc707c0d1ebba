package container

import (
	"bytes"
	"io"
	"testing"

	"github.com/containerfs/containerfs/internal/crypto"
	"github.com/containerfs/containerfs/internal/hostfs"
	"github.com/containerfs/containerfs/pkg/utils"
)

func silentLogger() *utils.StructuredLogger {
	return utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:  utils.ERROR,
		Output: io.Discard,
	})
}

func TestIsZeroKey(t *testing.T) {
	if !IsZeroKey(nil) {
		t.Error("nil key is zero")
	}
	if !IsZeroKey(make([]byte, 32)) {
		t.Error("all-zero key is zero")
	}
	key := make([]byte, 32)
	key[31] = 1
	if IsZeroKey(key) {
		t.Error("non-zero key misclassified")
	}
}

func TestResolveKeyPassThrough(t *testing.T) {
	host := hostfs.NewMemoryFS()
	key := testEngineKey()

	got, err := ResolveKey(host, "/c.dat", key, nil, silentLogger())
	if err != nil {
		t.Fatalf("ResolveKey failed: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Error("caller-supplied key must pass through")
	}

	// no key file should appear for a supplied key
	if exists, _ := host.Exists(KeyFilePath("/c.dat")); exists {
		t.Error("unexpected key file")
	}
}

func TestResolveKeyRejectsBadLength(t *testing.T) {
	if _, err := ResolveKey(hostfs.NewMemoryFS(), "/c.dat", []byte("short"), nil, silentLogger()); err == nil {
		t.Error("expected error for bad key length")
	}
}

func TestResolveKeyGeneratesAndRecoversKEMKey(t *testing.T) {
	host := hostfs.NewMemoryFS()

	first, err := ResolveKey(host, "/c.dat", nil, nil, silentLogger())
	if err != nil {
		t.Fatalf("ResolveKey failed: %v", err)
	}
	if len(first) != crypto.KeySize {
		t.Fatalf("key length %d", len(first))
	}

	if exists, _ := host.Exists(KeyFilePath("/c.dat")); !exists {
		t.Fatal("key file missing after generation")
	}

	// an all-zero key takes the same path and must recover the same key
	second, err := ResolveKey(host, "/c.dat", make([]byte, crypto.KeySize), nil, silentLogger())
	if err != nil {
		t.Fatalf("second ResolveKey failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("reopening did not recover the persisted key")
	}
}

func TestResolveKeyHonorsProvidedKEMMode(t *testing.T) {
	host := hostfs.NewMemoryFS()
	kem, err := crypto.NewHybridProvider(crypto.ModeKyber512)
	if err != nil {
		t.Fatalf("provider failed: %v", err)
	}

	if _, err := ResolveKey(host, "/c.dat", nil, kem, silentLogger()); err != nil {
		t.Fatalf("ResolveKey failed: %v", err)
	}

	data, err := hostfs.ReadFile(host, KeyFilePath("/c.dat"))
	if err != nil {
		t.Fatalf("key file read failed: %v", err)
	}
	kf, err := unmarshalKeyFile(data)
	if err != nil {
		t.Fatalf("key file parse failed: %v", err)
	}
	if kf.Mode != crypto.ModeKyber512 {
		t.Errorf("persisted mode = %q", kf.Mode)
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	kf := keyFile{
		Mode:          crypto.ModeKyber768,
		PrivateKey:    bytes.Repeat([]byte{0x01}, 2400),
		KEMCiphertext: bytes.Repeat([]byte{0x02}, 1088),
	}

	got, err := unmarshalKeyFile(kf.marshal())
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.Mode != kf.Mode || !bytes.Equal(got.PrivateKey, kf.PrivateKey) ||
		!bytes.Equal(got.KEMCiphertext, kf.KEMCiphertext) {
		t.Error("round trip mismatch")
	}
}

func TestKeyFileRejectsForeignData(t *testing.T) {
	if _, err := unmarshalKeyFile([]byte("not a key file")); err == nil {
		t.Error("expected error for foreign data")
	}
}
