package random

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// NewID returns a hyphenated UUID. Runs, chats, messages, agent configs and
// personas are all keyed by it.
func NewID() string {
	return uuid.NewString()
}

var ten = big.NewInt(10)

// GetRandomNumberString returns length decimal digits from crypto/rand.
func GetRandomNumberString(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			panic(err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits)
}
