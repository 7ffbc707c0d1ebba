package hsm

import (
	"crypto/subtle"

	"lukechampine.com/blake3"

	"github.com/containerfs/containerfs/internal/crypto"
)

// HashSize is the digest length produced by the software module.
const HashSize = 32

// SoftwareModule is the always-available software fallback. Hashing uses
// BLAKE3; encryption delegates to the authenticated AES provider.
type SoftwareModule struct {
	provider *crypto.AESProvider
}

// NewSoftwareModule creates the software fallback module.
func NewSoftwareModule() *SoftwareModule {
	return &SoftwareModule{provider: crypto.NewAESProvider()}
}

// IsAvailable always reports true for the software module.
func (m *SoftwareModule) IsAvailable() bool {
	return true
}

// Encrypt encrypts data under the given key.
func (m *SoftwareModule) Encrypt(data, key []byte) ([]byte, error) {
	return m.provider.Encrypt(data, key)
}

// Decrypt decrypts data under the given key.
func (m *SoftwareModule) Decrypt(data, key []byte) ([]byte, error) {
	return m.provider.Decrypt(data, key)
}

// GenerateKey produces a fresh random 32-byte key.
func (m *SoftwareModule) GenerateKey() ([]byte, error) {
	return crypto.GenerateKey()
}

// CalculateIntegrityHash returns the 32-byte BLAKE3 digest of data.
func (m *SoftwareModule) CalculateIntegrityHash(data []byte) ([]byte, error) {
	sum := blake3.Sum256(data)
	return sum[:], nil
}

// VerifyIntegrity compares the digest of data against expected in constant
// time.
func (m *SoftwareModule) VerifyIntegrity(data, expected []byte) (bool, error) {
	calculated, err := m.CalculateIntegrityHash(data)
	if err != nil {
		return false, err
	}
	if len(calculated) != len(expected) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(calculated, expected) == 1, nil
}
