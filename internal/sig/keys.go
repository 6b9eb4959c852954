package sig

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

func EncodePublicKey(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}
