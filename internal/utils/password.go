package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// PasswordLongEnough reports whether plain has at least min characters.
// bcrypt only reads the first 72 bytes, so callers should also reject
// anything longer than MaxPasswordBytes.
func PasswordLongEnough(plain string, min int) bool {
	return len([]rune(plain)) >= min
}

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72
