package random

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// GetUUID generates a UUID and returns it as a string without hyphens.
func GetUUID() string {
	code := uuid.New().String()
	return strings.Replace(code, "-", "", -1)
}

const keyChars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateKey creates a 48-character API key: 16 random characters followed by
// a case-mixed UUID. Callers prepend the "sk-" prefix for display.
func GenerateKey() string {
	key := make([]byte, 48)
	for i := range 16 {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(keyChars))))
		if err != nil {
			panic(err)
		}
		key[i] = keyChars[n.Int64()]
	}
	id := GetUUID()
	for i := range 32 {
		c := id[i]
		if i%2 == 0 && c >= 'a' && c <= 'z' {
			c = c - 'a' + 'A'
		}
		key[i+16] = c
	}
	return string(key)
}

// GetRandomString generates a random alphanumeric string of the given length
// using crypto/rand.
func GetRandomString(length int) string {
	key := make([]byte, length)
	for i := range length {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(keyChars))))
		if err != nil {
			panic(err)
		}
		key[i] = keyChars[n.Int64()]
	}
	return string(key)
}
