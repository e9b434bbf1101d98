// Package common defines sentinel errors and small helpers shared across
// teamplan layers. Callers match the sentinels with errors.Is.
package common

import "errors"

var (
	// Repository/store-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Authn/authz errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Crypto errors. ErrDecryption means an envelope failed authentication
	// or was malformed; it never carries ciphertext or key bytes.
	ErrDecryption = errors.New("decryption failed")

	// Startup errors (missing/invalid key material or DSN).
	ErrConfiguration = errors.New("invalid configuration")

	// Input validation errors.
	ErrValidation = errors.New("validation error")

	// Generic internal flow control.
	ErrInternal = errors.New("internal error")
)
