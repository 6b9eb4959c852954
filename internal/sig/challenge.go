package sig

import "fmt"

// Challenge strings are reconstructed locally by the hub and never taken from
// the wire, so a signature only ever proves possession of the key for the
// exact exchange the hub issued.

func SignupChallenge(callbackID, publicKeyB58 string) []byte {
	return []byte(fmt.Sprintf("Signed message for %s, %s", callbackID, publicKeyB58))
}

func ReplyChallenge(callbackID string) []byte {
	return []byte("Replying to " + callbackID)
}
