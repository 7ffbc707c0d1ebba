package crypto

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestGCMRoundTrip(t *testing.T) {
	provider := NewAESProvider()
	key := testKey()

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"short", []byte("hello")},
		{"empty", []byte{}},
		{"block aligned", bytes.Repeat([]byte{0xAB}, 64)},
		{"large", bytes.Repeat([]byte{0x42}, 1<<16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := provider.Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}
			if len(ct) != len(tt.plaintext)+NonceSize+TagSize {
				t.Errorf("ciphertext length %d, want %d", len(ct), len(tt.plaintext)+NonceSize+TagSize)
			}

			pt, err := provider.Decrypt(ct, key)
			if err != nil {
				t.Fatalf("decrypt failed: %v", err)
			}
			if !bytes.Equal(pt, tt.plaintext) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestGCMNonceUniqueness(t *testing.T) {
	provider := NewAESProvider()
	key := testKey()
	plaintext := []byte("same input")

	a, err := provider.Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	b, err := provider.Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext produced identical output")
	}
}

func TestGCMTamperDetection(t *testing.T) {
	provider := NewAESProvider()
	key := testKey()

	ct, err := provider.Encrypt([]byte("authentic data"), key)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	ct[len(ct)-1] ^= 0x01

	if _, err := provider.Decrypt(ct, key); err == nil {
		t.Error("expected authentication failure on tampered ciphertext")
	}
}

func TestGCMWrongKey(t *testing.T) {
	provider := NewAESProvider()

	ct, err := provider.Encrypt([]byte("secret"), testKey())
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	other := testKey()
	other[0] ^= 0xFF
	if _, err := provider.Decrypt(ct, other); err == nil {
		t.Error("expected decryption failure under wrong key")
	}
}

func TestGCMShortCiphertext(t *testing.T) {
	provider := NewAESProvider()
	if _, err := provider.Decrypt([]byte{1, 2, 3}, testKey()); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}

func TestBadKeyLength(t *testing.T) {
	provider := NewAESProvider()
	if _, err := provider.Encrypt([]byte("x"), []byte("short")); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := provider.Decrypt(make([]byte, 64), []byte("short")); err == nil {
		t.Error("expected error for short key")
	}
}

func TestCBCRoundTrip(t *testing.T) {
	provider := NewCBCProvider()
	key := testKey()

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"short", []byte("cbc mode")},
		{"empty", []byte{}},
		{"exact block", bytes.Repeat([]byte{0x11}, 16)},
		{"multi block", bytes.Repeat([]byte{0x22}, 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := provider.Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}
			// iv + padded payload, always a whole number of blocks
			if (len(ct)-IVSize)%16 != 0 || len(ct) <= IVSize {
				t.Errorf("unexpected ciphertext length %d", len(ct))
			}

			pt, err := provider.Decrypt(ct, key)
			if err != nil {
				t.Fatalf("decrypt failed: %v", err)
			}
			if !bytes.Equal(pt, tt.plaintext) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestCBCMalformedCiphertext(t *testing.T) {
	provider := NewCBCProvider()
	key := testKey()

	if _, err := provider.Decrypt(make([]byte, IVSize), key); err == nil {
		t.Error("expected error for iv-only ciphertext")
	}
	if _, err := provider.Decrypt(make([]byte, IVSize+7), key); err == nil {
		t.Error("expected error for unaligned ciphertext")
	}
}

func TestPKCS7(t *testing.T) {
	for length := 0; length <= 33; length++ {
		data := bytes.Repeat([]byte{0x5A}, length)
		padded := padPKCS7(data, 16)
		if len(padded)%16 != 0 {
			t.Fatalf("padded length %d not block aligned", len(padded))
		}
		out, err := unpadPKCS7(padded, 16)
		if err != nil {
			t.Fatalf("unpad failed for length %d: %v", length, err)
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("pad/unpad mismatch for length %d", length)
		}
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(a) != KeySize {
		t.Errorf("key length %d, want %d", len(a), KeySize)
	}
	b, _ := GenerateKey()
	if bytes.Equal(a, b) {
		t.Error("two generated keys are identical")
	}
}
