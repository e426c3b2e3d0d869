package envelope

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// Keypair protects the symmetric key of an envelope. SealKey uses the public
// half, OpenKey the private half and fails with ErrWrongKeypair if the key
// was sealed for another keypair.
type Keypair interface {
	SealKey(key []byte) ([]byte, error)
	OpenKey(sealed []byte) ([]byte, error)
}

// BoxKeypair seals keys as anonymous NaCl boxes (X25519, XSalsa20-Poly1305).
// A BoxKeypair without PrivateKey can only lock.
type BoxKeypair struct {
	PublicKey  *[32]byte
	PrivateKey *[32]byte
}

func GenerateBoxKeypair() (*BoxKeypair, error) {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("envelope: generating keypair: %w", err)
	}
	return &BoxKeypair{PublicKey: publicKey, PrivateKey: privateKey}, nil
}

// Public returns a keypair holding only the public half.
func (kp *BoxKeypair) Public() *BoxKeypair {
	return &BoxKeypair{PublicKey: kp.PublicKey}
}

func (kp *BoxKeypair) SealKey(key []byte) ([]byte, error) {
	return box.SealAnonymous(nil, key, kp.PublicKey, rand.Reader)
}

func (kp *BoxKeypair) OpenKey(sealed []byte) ([]byte, error) {
	if kp.PrivateKey == nil {
		return nil, fmt.Errorf("%w: no private key", ErrWrongKeypair)
	}
	key, ok := box.OpenAnonymous(nil, sealed, kp.PublicKey, kp.PrivateKey)
	if !ok {
		return nil, ErrWrongKeypair
	}
	return key, nil
}
