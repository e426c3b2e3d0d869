// Package envelope locks a whole locket with a fresh symmetric key that is
// itself sealed for an asymmetric keypair.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/i5heu/ouroboros-locket/pkg/binaryCoder"
	"github.com/i5heu/ouroboros-locket/pkg/locket"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	XChaCha20Poly1305 = "xchacha20-poly1305"
	AES256GCM         = "aes-256-gcm"

	keySize = 32
)

var (
	ErrWrongKeypair     = errors.New("envelope: keypair cannot open the envelope")
	ErrUnknownAlgorithm = errors.New("envelope: unknown algorithm")
	ErrCorrupted        = errors.New("envelope: corrupted envelope")
)

// Envelope is a locked locket. C and L are base64 encoded.
type Envelope struct {
	A string `json:"a"` // algorithm
	C string `json:"c"` // sealed symmetric key
	L string `json:"l"` // encrypted locket document, nonce first
}

type Options struct {
	Algorithm string       // defaults to XChaCha20Poly1305
	Coder     locket.Codec // defaults to an uncompressed binaryCoder
}

func (o Options) withDefaults() Options {
	if o.Algorithm == "" {
		o.Algorithm = XChaCha20Poly1305
	}
	if o.Coder == nil {
		o.Coder = binaryCoder.New(binaryCoder.Options{})
	}
	return o
}

// Lock encodes l and encrypts it with a new random key sealed for kp.
func Lock(l *locket.Locket, kp Keypair, opts Options) (*Envelope, error) {
	opts = opts.withDefaults()

	if _, err := newAEAD(opts.Algorithm, nil); err != nil {
		return nil, err
	}

	encoded, err := locket.Encode(l, opts.Coder)
	if err != nil {
		return nil, err
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("envelope: generating key: %w", err)
	}
	aead, err := newAEAD(opts.Algorithm, key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(encoded)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("envelope: generating nonce: %w", err)
	}
	ciphertext := aead.Seal(nonce, nonce, encoded, []byte(opts.Algorithm))

	sealedKey, err := kp.SealKey(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: sealing key: %w", err)
	}

	return &Envelope{
		A: opts.Algorithm,
		C: base64.StdEncoding.EncodeToString(sealedKey),
		L: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Unlock opens env with kp and decodes the locket. The algorithm is taken
// from the envelope; only opts.Coder is used.
func Unlock(env *Envelope, kp Keypair, opts Options) (*locket.Locket, error) {
	opts = opts.withDefaults()

	sealedKey, err := base64.StdEncoding.DecodeString(env.C)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrCorrupted, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.L)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrCorrupted, err)
	}

	key, err := kp.OpenKey(sealedKey)
	if err != nil {
		return nil, err
	}
	if len(key) != keySize {
		return nil, ErrWrongKeypair
	}

	aead, err := newAEAD(env.A, key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: payload too short", ErrCorrupted)
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	encoded, err := aead.Open(nil, nonce, sealed, []byte(env.A))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	l, err := locket.Decode(encoded, opts.Coder)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	return l, nil
}

// TestLock reports whether kp unlocks env.
func TestLock(env *Envelope, kp Keypair, opts Options) bool {
	_, err := Unlock(env, kp, opts)
	return err == nil
}

// newAEAD builds the cipher for algorithm. A nil key only checks that the
// algorithm is known.
func newAEAD(algorithm string, key []byte) (cipher.AEAD, error) {
	if key == nil {
		key = make([]byte, keySize)
	}

	switch algorithm {
	case XChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
}
