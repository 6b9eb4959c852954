package sig

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

// Verifier checks detached ed25519 signatures against base58-encoded public
// keys. It never returns an error to the caller: any malformed key or
// signature container counts as a failed verification.
type Verifier struct {
	log *zap.Logger
}

func NewVerifier(log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.L()
	}
	return &Verifier{log: log.With(zap.String("component", "sig.verifier"))}
}

func (v *Verifier) Verify(message []byte, publicKeyB58 string, signature []byte) bool {
	pub, err := base58.Decode(publicKeyB58)
	if err != nil {
		v.log.Debug("bad public key encoding", zap.Error(err))
		return false
	}
	if len(pub) != ed25519.PublicKeySize {
		v.log.Debug("bad public key size", zap.Int("size", len(pub)))
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		v.log.Debug("bad signature size", zap.Int("size", len(signature)))
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, signature)
}
