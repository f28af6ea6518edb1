package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	specialChars = "!@#$%^&*()_+"

	// Recovery passwords are 8 characters: two from each class.
	recoveryLength   = 8
	recoveryPerClass = 2
)

// NewRecoveryPassword generates a random 8-character password containing two
// lowercase letters, two uppercase letters, two digits, and two specials, in
// random order. All randomness comes from crypto/rand.
func NewRecoveryPassword() (string, error) {
	classes := []string{lowerChars, upperChars, digitChars, specialChars}

	buf := make([]byte, 0, recoveryLength)
	for _, class := range classes {
		for i := 0; i < recoveryPerClass; i++ {
			c, err := randomByte(class)
			if err != nil {
				return "", err
			}
			buf = append(buf, c)
		}
	}

	if err := shuffle(buf); err != nil {
		return "", err
	}
	if len(buf) != recoveryLength {
		return "", errors.New("invalid recovery password length")
	}

	return string(buf), nil
}

func randomByte(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, err
	}
	return alphabet[n.Int64()], nil
}

// Fisher-Yates with crypto/rand indices.
func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return err
		}
		j := n.Int64()
		b[i], b[j] = b[j], b[i]
	}
	return nil
}
