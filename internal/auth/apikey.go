package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidKey = errors.New("invalid api key")

// KeyVerifier checks bearer keys against a single bcrypt hash.
type KeyVerifier struct {
	hash []byte
}

func NewKeyVerifier(hash string) (*KeyVerifier, error) {
	hash = strings.TrimSpace(hash)
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("parse api key hash: %w", err)
	}
	return &KeyVerifier{hash: []byte(hash)}, nil
}

func (v *KeyVerifier) Verify(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		return ErrInvalidKey
	}
	return nil
}

// GenerateKey returns a fresh random key and its bcrypt hash.
func GenerateKey(cost int) (key, hash string, err error) {
	key = "coin_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	h, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", "", fmt.Errorf("hash api key: %w", err)
	}
	return key, string(h), nil
}
