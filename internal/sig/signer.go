package sig

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Signer holds a validator's ed25519 identity.
type Signer struct {
	priv ed25519.PrivateKey
	pub  string // base58
}

func NewSigner(priv ed25519.PrivateKey) *Signer {
	return &Signer{priv: priv, pub: EncodePublicKey(priv.Public().(ed25519.PublicKey))}
}

// LoadOrCreateSigner reads a hex-encoded ed25519 seed from path, generating
// and persisting a fresh one when the file does not exist yet.
func LoadOrCreateSigner(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		seed, derr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if derr != nil {
			return nil, fmt.Errorf("decode key file %s: %w", path, derr)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("key file %s: want %d seed bytes, got %d", path, ed25519.SeedSize, len(seed))
		}
		return NewSigner(ed25519.NewKeyFromSeed(seed)), nil

	case os.IsNotExist(err):
		seed := make([]byte, ed25519.SeedSize)
		if _, rerr := rand.Read(seed); rerr != nil {
			return nil, fmt.Errorf("generate seed: %w", rerr)
		}
		if merr := os.MkdirAll(filepath.Dir(path), 0o700); merr != nil {
			return nil, fmt.Errorf("create key dir: %w", merr)
		}
		if werr := os.WriteFile(path, []byte(hex.EncodeToString(seed)+"\n"), 0o600); werr != nil {
			return nil, fmt.Errorf("write key file: %w", werr)
		}
		return NewSigner(ed25519.NewKeyFromSeed(seed)), nil

	default:
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
}

func (s *Signer) PublicKey() string { return s.pub }

func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.priv, message)
}
