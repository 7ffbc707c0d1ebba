package container

import (
	"encoding/binary"

	"lukechampine.com/blake3"

	"github.com/containerfs/containerfs/internal/crypto"
	"github.com/containerfs/containerfs/internal/hostfs"
	"github.com/containerfs/containerfs/pkg/errors"
	"github.com/containerfs/containerfs/pkg/utils"
)

// keyFileMagic tags the sibling key file holding KEM key material.
const keyFileMagic uint32 = 0x4B534643 // "CFSK"

// keyFile is the persisted KEM material for a container whose caller
// supplied no key: the private key plus the encapsulation that produced the
// container's symmetric key.
type keyFile struct {
	Mode          string
	PrivateKey    []byte
	KEMCiphertext []byte
}

func (k *keyFile) marshal() []byte {
	buf := binary.LittleEndian.AppendUint32(nil, keyFileMagic)
	buf = appendBytes(buf, []byte(k.Mode))
	buf = appendBytes(buf, k.PrivateKey)
	buf = appendBytes(buf, k.KEMCiphertext)
	return buf
}

func unmarshalKeyFile(buf []byte) (keyFile, error) {
	r := reader{buf: buf}
	if r.uint32() != keyFileMagic {
		return keyFile{}, errors.InvalidFormat("not a container key file")
	}
	k := keyFile{
		Mode: string(r.bytes()),
	}
	k.PrivateKey = r.bytes()
	k.KEMCiphertext = r.bytes()
	if r.err != nil {
		return keyFile{}, errors.InvalidFormat("truncated key file").WithCause(r.err)
	}
	return k, nil
}

// KeyFilePath returns the sibling key file path for a container.
func KeyFilePath(containerPath string) string {
	return containerPath + ".key"
}

// IsZeroKey reports whether the key is absent or all zeros, which the
// factory treats as "no key supplied".
func IsZeroKey(key []byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}

// ResolveKey produces the container's 32-byte symmetric key. A caller-
// supplied key passes through. With no key, the factory round-trips KEM
// material through the sibling .key file so reopening the container
// recovers the same key; when that fails it derives a deterministic
// path-based key, which is unsafe and suitable only for tests.
func ResolveKey(host hostfs.HostFS, containerPath string, key []byte,
	kem *crypto.HybridProvider, log *utils.StructuredLogger) ([]byte, error) {

	if len(key) == crypto.KeySize && !IsZeroKey(key) {
		return append([]byte(nil), key...), nil
	}
	if len(key) != 0 && len(key) != crypto.KeySize {
		return nil, errors.Newf(errors.KindInvalidArgument, "key must be %d bytes", crypto.KeySize)
	}

	keyPath := KeyFilePath(containerPath)

	if exists, err := host.Exists(keyPath); err == nil && exists {
		data, err := hostfs.ReadFile(host, keyPath)
		if err == nil {
			if kf, err := unmarshalKeyFile(data); err == nil {
				provider := kem
				if provider == nil || provider.Mode() != kf.Mode {
					provider, err = crypto.NewHybridProvider(kf.Mode)
					if err != nil {
						return nil, err
					}
				}
				shared, err := provider.Decapsulate(kf.KEMCiphertext, kf.PrivateKey)
				if err == nil {
					return shared, nil
				}
				log.Warn("key file decapsulation failed", map[string]interface{}{
					"path": keyPath,
				})
			}
		}
	}

	if kem == nil {
		var err error
		kem, err = crypto.NewHybridProvider(crypto.ModeKyber768)
		if err != nil {
			return deriveFallbackKey(containerPath, log), nil
		}
	}

	pub, priv, err := kem.GenerateKeypair()
	if err != nil {
		return deriveFallbackKey(containerPath, log), nil
	}
	kemCT, shared, err := kem.Encapsulate(pub)
	if err != nil {
		return deriveFallbackKey(containerPath, log), nil
	}

	kf := keyFile{Mode: kem.Mode(), PrivateKey: priv, KEMCiphertext: kemCT}
	if err := hostfs.WriteFile(host, keyPath, kf.marshal()); err != nil {
		log.Warn("key file write failed, falling back to derived key", map[string]interface{}{
			"path": keyPath,
		})
		return deriveFallbackKey(containerPath, log), nil
	}

	log.Info("generated container key from fresh KEM material", map[string]interface{}{
		"mode": kem.Mode(),
	})
	return shared, nil
}

// deriveFallbackKey hashes the container path into a key. Deterministic and
// unsafe; documented as test-only.
func deriveFallbackKey(containerPath string, log *utils.StructuredLogger) []byte {
	log.Warn("using deterministic path-derived key; unsafe outside tests", map[string]interface{}{
		"path": containerPath,
	})
	sum := blake3.Sum256([]byte(containerPath))
	return sum[:]
}
