package identity

import (
	"github.com/dstepanovs/teamplan/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the narrow contract the user service consumes for
// credential storage.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher implements PasswordHasher with bcrypt at the default cost.
type BcryptHasher struct{}

func (BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare returns common.ErrUnauthorized when the password does not match,
// so callers never have to interpret bcrypt errors.
func (BcryptHasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return common.ErrUnauthorized
	}
	return nil
}
