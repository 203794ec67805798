package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/codr1/Kickabout/internal/api/apiutil"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// HashPassword hashes a password for the users collection.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches a stored hash. A malformed
// hash never matches.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func validPassword(password string) error {
	switch {
	case len(password) < minPasswordLength:
		return apiutil.FieldError{Field: "password", Reason: "Password must be at least 8 characters"}
	case len(password) > maxPasswordBytes:
		return apiutil.FieldError{Field: "password", Reason: "Password must be at most 72 characters"}
	}
	return nil
}
