// internal/engine/shuffle.go
package engine

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/rand/v2"
)

// Shuffle returns a Fisher-Yates permutation of cards driven entirely
// by the seed string. The same seed and input order always produce
// the same output, which is what makes a game's shuffle replayable
// for auditing. The input slice is never modified.
func Shuffle(cards []Card, seed string) []Card {
	sum := sha256.Sum256([]byte(seed))
	rng := rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(sum[0:8]),
		binary.LittleEndian.Uint64(sum[8:16]),
	))

	shuffled := make([]Card, len(cards))
	copy(shuffled, cards)

	for i := len(shuffled) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}

// GenerateSeed produces a fresh 32-character hex seed from the OS
// entropy source. This is the only nondeterministic input to a game;
// everything downstream of the seed is reproducible.
func GenerateSeed() string {
	var b [16]byte
	// crypto/rand.Read is documented to never fail.
	_, _ = cryptorand.Read(b[:])
	return hex.EncodeToString(b[:])
}
