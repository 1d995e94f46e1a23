package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/kalambet/vitalsync/internal/vital"
)

const (
	SaltSize   = 16
	IVSize     = 12
	KeySize    = 32
	Iterations = 10000
)

// Envelope is an encrypted payload. Byte fields serialise as base64 in JSON.
type Envelope struct {
	IV         []byte `json:"iv"`
	Salt       []byte `json:"salt"`
	Ciphertext []byte `json:"ciphertext"`
	HMAC       []byte `json:"hmac"`
}

// deriveKeys stretches secret with salt into an AES key and a MAC key.
func deriveKeys(secret, salt []byte) (encKey, macKey []byte) {
	k := pbkdf2.Key(secret, salt, Iterations, 2*KeySize, sha256.New)
	return k[:KeySize], k[KeySize:]
}

func mac(key []byte, env Envelope) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(env.Salt)
	h.Write(env.IV)
	h.Write(env.Ciphertext)
	return h.Sum(nil)
}

func seal(secret, plaintext []byte) (Envelope, error) {
	env := Envelope{Salt: make([]byte, SaltSize), IV: make([]byte, IVSize)}
	if _, err := rand.Read(env.Salt); err != nil {
		return Envelope{}, fmt.Errorf("generating salt: %w", err)
	}
	if _, err := rand.Read(env.IV); err != nil {
		return Envelope{}, fmt.Errorf("generating iv: %w", err)
	}

	encKey, macKey := deriveKeys(secret, env.Salt)
	aead, err := newGCM(encKey)
	if err != nil {
		return Envelope{}, err
	}
	env.Ciphertext = aead.Seal(nil, env.IV, plaintext, nil)
	env.HMAC = mac(macKey, env)
	return env, nil
}

// open verifies the MAC before touching the ciphertext. Any failure is
// reported as vital.ErrIntegrity and no plaintext is returned.
func open(secret []byte, env Envelope) ([]byte, error) {
	if len(env.Salt) != SaltSize || len(env.IV) != IVSize || len(env.HMAC) != sha256.Size {
		return nil, fmt.Errorf("malformed envelope: %w", vital.ErrIntegrity)
	}
	encKey, macKey := deriveKeys(secret, env.Salt)
	if !hmac.Equal(mac(macKey, env), env.HMAC) {
		integrityFailures.Inc()
		return nil, fmt.Errorf("mac mismatch: %w", vital.ErrIntegrity)
	}

	aead, err := newGCM(encKey)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		integrityFailures.Inc()
		return nil, fmt.Errorf("decrypting: %w", vital.ErrIntegrity)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return aead, nil
}
