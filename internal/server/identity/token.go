// Package identity is the identity collaborator: it issues access tokens at
// login and resolves an inbound credential to a principal. Absence or
// invalidity of the credential is an unauthenticated condition.
package identity

import (
	"fmt"
	"time"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the principal ID and the super-admin flag next to the
// registered JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID     string `json:"uid"`
	SuperAdmin bool   `json:"sadm,omitempty"`
}

// Resolver verifies HS256 tokens signed with the process-wide secret.
type Resolver struct {
	secret   []byte
	validity time.Duration
}

func NewResolver(secret []byte, validity time.Duration) *Resolver {
	return &Resolver{secret: secret, validity: validity}
}

// IssueToken signs an access token for the given user.
func (r *Resolver) IssueToken(userID string, superAdmin bool) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(r.validity)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:     userID,
		SuperAdmin: superAdmin,
	})
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ResolvePrincipal returns the principal encoded in tokenString, or
// common.ErrUnauthorized for a missing, malformed, expired or forged token.
func (r *Resolver) ResolvePrincipal(tokenString string) (authz.Principal, error) {
	if tokenString == "" {
		return authz.Principal{}, common.ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.UserID == "" {
		return authz.Principal{}, common.ErrUnauthorized
	}

	return authz.Principal{ID: claims.UserID, SuperAdmin: claims.SuperAdmin}, nil
}
