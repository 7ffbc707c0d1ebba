// Package hsm abstracts hardware security modules. The engine consumes only
// the integrity-hash operations; bulk encryption flows through the crypto
// providers.
package hsm

import (
	"github.com/containerfs/containerfs/pkg/types"
	"github.com/containerfs/containerfs/pkg/utils"
)

// Module is the hardware security module contract.
type Module interface {
	// IsAvailable reports whether the module can be used; the software
	// fallback always reports true.
	IsAvailable() bool
	// Encrypt encrypts data under the given key.
	Encrypt(data, key []byte) ([]byte, error)
	// Decrypt decrypts data under the given key.
	Decrypt(data, key []byte) ([]byte, error)
	// GenerateKey produces a fresh random symmetric key.
	GenerateKey() ([]byte, error)
	// VerifyIntegrity compares the digest of data against expected.
	VerifyIntegrity(data, expected []byte) (bool, error)
	// CalculateIntegrityHash returns the 32-byte digest of data.
	CalculateIntegrityHash(data []byte) ([]byte, error)
}

// New selects a module for the requested security level. Hardware discovery
// is delegated to external collaborators; this package always resolves to
// the software fallback and notes when hardware was requested.
func New(level types.SecurityLevel, logger *utils.StructuredLogger) Module {
	if level == types.SecurityHardwareBacked && logger != nil {
		logger.Warn("hardware security module not present, using software fallback", map[string]interface{}{
			"security_level": level.String(),
		})
	}
	return NewSoftwareModule()
}
