package probe

import "crypto/rand"

const tokenAlphabet = "bcdfghjklmnpqrstvwxyzBCDFGHJKLMNPQRSTVWXYZ0123456789"

// NewToken returns a random 16 character marker. It has no vowels, so it
// won't spell anything or collide with ordinary traffic.
func NewToken() string {
	var tokenBytes [16]byte
	rand.Read(tokenBytes[:])
	for i, b := range tokenBytes {
		tokenBytes[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(tokenBytes[:])
}
