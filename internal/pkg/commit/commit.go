// Package commit implements the salted hash commitment for round answers.
// The commitment is published when a round starts; the salt and answer are
// revealed at resolution so anyone can verify the answer was fixed before
// guessing began.
package commit

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// SaltSize is the byte length of the random salt.
const SaltSize = 32

// NewSalt returns a hex-encoded cryptographically random salt.
func NewSalt() (string, error) {
	buf := make([]byte, SaltSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Hash computes the hex commitment hash of sha256(salt || answer).
// The answer is normalized to upper case so verification is insensitive to
// the caller's casing.
func Hash(saltHex, answer string) (string, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("malformed salt: %w", err)
	}
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(strings.ToUpper(answer)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether the revealed salt and answer reproduce the
// published commitment. Comparison is constant time.
func Verify(saltHex, answer, commitHash string) bool {
	got, err := Hash(saltHex, answer)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(commitHash))) == 1
}
