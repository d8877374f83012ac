package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned only after the password matched.
	ErrAccountDisabled = errors.New("account disabled")
	ErrSigningFailure  = errors.New("token signing failed")

	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")

	ErrCredentialExists   = errors.New("credential already exists")
	ErrCredentialNotFound = errors.New("credential not found")

	ErrPersonNotFound  = errors.New("person not found")
	ErrAddressNotFound = errors.New("address not found")

	// ErrInvariantViolation signals a person ending up with more than one
	// principal address. Seeing it means the per-person serialization broke.
	ErrInvariantViolation = errors.New("aggregate invariant violated")

	// ErrInvalidInput wraps every rejection of malformed caller input.
	ErrInvalidInput = errors.New("invalid input")

	ErrUnknownRole       = errors.New("unknown role")
	ErrInvalidPermission = errors.New("invalid permission")
)

// Identifier fields checked for uniqueness across the person population.
const (
	FieldNationalID = "national_id"
	FieldEmail      = "email"
	FieldUsername   = "username"
)

// DuplicateIdentifierError reports which identifier collided on create/update.
type DuplicateIdentifierError struct {
	Field string
	Value string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("duplicate %s: %s", e.Field, e.Value)
}

// IsDuplicateIdentifier reports whether err is a DuplicateIdentifierError and returns it.
func IsDuplicateIdentifier(err error) (*DuplicateIdentifierError, bool) {
	var de *DuplicateIdentifierError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
