package hsm

import (
	"bytes"
	"testing"

	"github.com/containerfs/containerfs/pkg/types"
)

func TestSoftwareModuleAvailability(t *testing.T) {
	if !NewSoftwareModule().IsAvailable() {
		t.Error("software module must always be available")
	}
}

func TestNewFallsBackToSoftware(t *testing.T) {
	module := New(types.SecurityHardwareBacked, nil)
	if module == nil {
		t.Fatal("expected a module")
	}
	if !module.IsAvailable() {
		t.Error("fallback module must be available")
	}
}

func TestCalculateIntegrityHash(t *testing.T) {
	module := NewSoftwareModule()

	hash, err := module.CalculateIntegrityHash([]byte("data to bind"))
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if len(hash) != HashSize {
		t.Errorf("hash length %d, want %d", len(hash), HashSize)
	}

	again, _ := module.CalculateIntegrityHash([]byte("data to bind"))
	if !bytes.Equal(hash, again) {
		t.Error("hash is not deterministic")
	}

	other, _ := module.CalculateIntegrityHash([]byte("different data"))
	if bytes.Equal(hash, other) {
		t.Error("distinct inputs produced identical digests")
	}
}

func TestVerifyIntegrity(t *testing.T) {
	module := NewSoftwareModule()
	data := []byte("payload")

	hash, err := module.CalculateIntegrityHash(data)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	ok, err := module.VerifyIntegrity(data, hash)
	if err != nil || !ok {
		t.Errorf("expected verification success, got ok=%v err=%v", ok, err)
	}

	tampered := append([]byte{}, hash...)
	tampered[0] ^= 0x01
	ok, err = module.VerifyIntegrity(data, tampered)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if ok {
		t.Error("expected verification failure for tampered hash")
	}

	ok, _ = module.VerifyIntegrity(data, hash[:16])
	if ok {
		t.Error("expected verification failure for truncated hash")
	}
}

func TestEncryptDecryptWithGeneratedKey(t *testing.T) {
	module := NewSoftwareModule()

	key, err := module.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("key length %d, want 32", len(key))
	}

	plaintext := []byte("hsm protected")
	ct, err := module.Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	pt, err := module.Decrypt(ct, key)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Error("round trip mismatch")
	}
}
