package crypto

import (
	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber1024"
	"github.com/cloudflare/circl/kem/kyber/kyber512"
	"github.com/cloudflare/circl/kem/kyber/kyber768"

	"github.com/containerfs/containerfs/pkg/errors"
)

// Kyber mode identifiers accepted by NewHybridProvider.
const (
	ModeKyber512  = "Kyber512"
	ModeKyber768  = "Kyber768"
	ModeKyber1024 = "Kyber1024"
)

// HybridProvider combines a Kyber key encapsulation mechanism with the
// AES-256-GCM provider. The KEM establishes the 32-byte shared secret; the
// shared secret is used directly as the symmetric key for bulk encryption.
type HybridProvider struct {
	mode   string
	scheme kem.Scheme
	aead   *AESProvider
}

// NewHybridProvider constructs a hybrid provider for the given Kyber mode.
func NewHybridProvider(mode string) (*HybridProvider, error) {
	var scheme kem.Scheme
	switch mode {
	case ModeKyber512:
		scheme = kyber512.Scheme()
	case ModeKyber768, "":
		mode = ModeKyber768
		scheme = kyber768.Scheme()
	case ModeKyber1024:
		scheme = kyber1024.Scheme()
	default:
		return nil, errors.Newf(errors.KindInvalidArgument, "unknown KEM mode %q", mode)
	}

	return &HybridProvider{
		mode:   mode,
		scheme: scheme,
		aead:   NewAESProvider(),
	}, nil
}

// Mode returns the KEM mode identifier fixed at construction.
func (p *HybridProvider) Mode() string {
	return p.mode
}

// GenerateKeypair produces a fresh (public, private) pair as opaque byte
// sequences.
func (p *HybridProvider) GenerateKeypair() (publicKey, privateKey []byte, err error) {
	pk, sk, err := p.scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, errors.IO("keypair generation failed", err)
	}

	publicKey, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, errors.IO("public key encoding failed", err)
	}
	privateKey, err = sk.MarshalBinary()
	if err != nil {
		return nil, nil, errors.IO("private key encoding failed", err)
	}
	return publicKey, privateKey, nil
}

// Encapsulate derives a fresh shared secret against the given public key and
// returns the KEM ciphertext alongside it. The shared secret is a valid
// 32-byte symmetric key for Encrypt/Decrypt.
func (p *HybridProvider) Encapsulate(publicKey []byte) (kemCiphertext, sharedSecret []byte, err error) {
	pk, err := p.scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, errors.InvalidArgument("malformed public key").WithCause(err)
	}

	kemCiphertext, sharedSecret, err = p.scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, errors.IO("encapsulation failed", err)
	}
	return kemCiphertext, sharedSecret, nil
}

// Decapsulate recovers the shared secret from a KEM ciphertext and the
// private key.
func (p *HybridProvider) Decapsulate(kemCiphertext, privateKey []byte) ([]byte, error) {
	sk, err := p.scheme.UnmarshalBinaryPrivateKey(privateKey)
	if err != nil {
		return nil, errors.InvalidArgument("malformed private key").WithCause(err)
	}

	shared, err := p.scheme.Decapsulate(sk, kemCiphertext)
	if err != nil {
		return nil, errors.IO("decapsulation failed", err)
	}
	return shared, nil
}

// Encrypt encrypts plaintext under the 32-byte shared secret.
func (p *HybridProvider) Encrypt(plaintext, key []byte) ([]byte, error) {
	return p.aead.Encrypt(plaintext, key)
}

// Decrypt decrypts ciphertext under the 32-byte shared secret.
func (p *HybridProvider) Decrypt(ciphertext, key []byte) ([]byte, error) {
	return p.aead.Decrypt(ciphertext, key)
}
