package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingPasswordHash = errors.New("password gate: bcrypt hash required")
	ErrInvalidPasswordHash = errors.New("password gate: malformed bcrypt hash")
	ErrInvalidCredentials  = errors.New("password gate: invalid credentials")
)

// PasswordGate admits the owner by comparing a password with the configured bcrypt hash.
type PasswordGate struct {
	hash []byte
}

func NewPasswordGate(passwordHash string) (*PasswordGate, error) {
	hash := strings.TrimSpace(passwordHash)
	if hash == "" {
		return nil, ErrMissingPasswordHash
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, ErrInvalidPasswordHash
	}
	return &PasswordGate{hash: []byte(hash)}, nil
}

// Check returns ErrInvalidCredentials unless password matches.
func (g *PasswordGate) Check(password string) error {
	if password == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword produces a bcrypt hash for the auth.password_hash setting.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
