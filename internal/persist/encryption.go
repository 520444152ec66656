package persist

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/argon2"

	"github.com/duskledger/walletd/internal/walleterr"
)

// Argon2id parameters for deriving the at-rest sealing key from the
// daemon's unlock passphrase. Only Argon2id + AES-256-GCM is
// supported — no legacy scrypt path exists to import from.
const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLen      = 32
	argon2SaltLen     = 32
)

// sealer holds the derived AES-256-GCM key used to encrypt/decrypt
// account root entropy before it touches disk; the view and spend
// private key columns are written unsealed. A Store without an unlocked sealer can still read non-secret
// columns but rejects any operation touching encrypted_entropy.
type sealer struct {
	gcm cipher.AEAD
}

func newSealer(passphrase string, salt []byte) (*sealer, error) {
	key := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
	defer secureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DatabaseLocked, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DatabaseLocked, err)
	}
	return &sealer{gcm: gcm}, nil
}

func newSalt() ([]byte, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func (s *sealer) seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	ciphertext = s.gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

func (s *sealer) open(ciphertext, nonce []byte) ([]byte, error) {
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, walleterr.New(walleterr.DatabaseLocked, "wrong passphrase or corrupted secret")
	}
	return plaintext, nil
}

func secureClear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
