package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/containerfs/containerfs/pkg/errors"
)

const (
	// NonceSize is the GCM nonce length prefixed to every ciphertext.
	NonceSize = 12
	// TagSize is the GCM authentication tag length appended to every
	// ciphertext.
	TagSize = 16
	// IVSize is the CBC initialization vector length.
	IVSize = aes.BlockSize
)

// CipherMode selects the symmetric construction used by AESProvider.
type CipherMode int

const (
	// ModeGCM is authenticated AES-256-GCM: nonce || ciphertext || tag.
	ModeGCM CipherMode = iota
	// ModeCBC is the confidentiality-only fallback: iv || ciphertext with
	// PKCS#7 padding. Callers pair it with explicit integrity hashes.
	ModeCBC
)

// AESProvider implements Provider with AES-256 in GCM or CBC mode.
type AESProvider struct {
	mode CipherMode
}

// NewAESProvider returns the default authenticated AES-256-GCM provider.
func NewAESProvider() *AESProvider {
	return &AESProvider{mode: ModeGCM}
}

// NewCBCProvider returns the CBC fallback provider.
func NewCBCProvider() *AESProvider {
	return &AESProvider{mode: ModeCBC}
}

// Mode returns the provider's cipher mode.
func (p *AESProvider) Mode() CipherMode {
	return p.mode
}

// Encrypt encrypts plaintext under a 32-byte key.
func (p *AESProvider) Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errors.Newf(errors.KindInvalidArgument, "key must be %d bytes, got %d", KeySize, len(key))
	}
	if p.mode == ModeCBC {
		return p.encryptCBC(plaintext, key)
	}
	return p.encryptGCM(plaintext, key)
}

// Decrypt decrypts ciphertext under a 32-byte key. A failed authentication
// tag or malformed padding reports IoError.
func (p *AESProvider) Decrypt(ciphertext, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errors.Newf(errors.KindInvalidArgument, "key must be %d bytes, got %d", KeySize, len(key))
	}
	if p.mode == ModeCBC {
		return p.decryptCBC(ciphertext, key)
	}
	return p.decryptGCM(ciphertext, key)
}

func (p *AESProvider) encryptGCM(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.IO("cipher init failed", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.IO("gcm init failed", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.IO("nonce generation failed", err)
	}

	// Seal appends ciphertext||tag to the nonce.
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (p *AESProvider) decryptGCM(ciphertext, key []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+TagSize {
		return nil, errors.New(errors.KindIoError, "ciphertext shorter than nonce and tag")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.IO("cipher init failed", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.IO("gcm init failed", err)
	}

	plaintext, err := gcm.Open(nil, ciphertext[:NonceSize], ciphertext[NonceSize:], nil)
	if err != nil {
		return nil, errors.IO("authentication failed", err)
	}
	return plaintext, nil
}

func (p *AESProvider) encryptCBC(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.IO("cipher init failed", err)
	}

	padded := padPKCS7(plaintext, aes.BlockSize)
	out := make([]byte, IVSize+len(padded))
	iv := out[:IVSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.IO("iv generation failed", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)
	return out, nil
}

func (p *AESProvider) decryptCBC(ciphertext, key []byte) ([]byte, error) {
	if len(ciphertext) <= IVSize || (len(ciphertext)-IVSize)%aes.BlockSize != 0 {
		return nil, errors.New(errors.KindIoError, "ciphertext not aligned to cipher block")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.IO("cipher init failed", err)
	}

	padded := make([]byte, len(ciphertext)-IVSize)
	cipher.NewCBCDecrypter(block, ciphertext[:IVSize]).CryptBlocks(padded, ciphertext[IVSize:])

	plaintext, err := unpadPKCS7(padded, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padding)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padding)
	}
	return out
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New(errors.KindIoError, "invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errors.New(errors.KindIoError, "invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New(errors.KindIoError, "invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}

// GenerateKey returns a fresh random 32-byte symmetric key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.IO("key generation failed", err)
	}
	return key, nil
}
