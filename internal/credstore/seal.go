package credstore

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrUnseal is returned when a sealed record cannot be opened, either because
// the key is wrong or the record was tampered with.
var ErrUnseal = errors.New("credstore: unable to open sealed record")

// Sealer encrypts credential records at rest with XChaCha20-Poly1305. The
// user ID is bound as additional data, so a record copied under another
// user's key fails to open.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credstore: creating cipher: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext for userID. The random nonce is prepended.
func (s *Sealer) Seal(userID string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("credstore: generating nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plaintext, []byte(userID)), nil
}

// Open decrypts a record produced by Seal for the same userID.
func (s *Sealer) Open(userID string, sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, ErrUnseal
	}

	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]

	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(userID))
	if err != nil {
		return nil, ErrUnseal
	}

	return plain, nil
}
