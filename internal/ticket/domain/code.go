package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateOneTimeCode returns a random fixed-width numeric code. Width is
// policy-driven; uniqueness among pending tickets is enforced by the store,
// not here.
func GenerateOneTimeCode(width int) (string, error) {
	if width < 1 {
		return "", ErrCodeGeneration
	}
	max := big.NewInt(10)
	max.Exp(max, big.NewInt(int64(width)), nil)

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", width, n), nil
}
