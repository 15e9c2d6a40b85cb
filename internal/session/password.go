package session

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordEncoder turns the typed password into what is sent to /login.
type PasswordEncoder interface {
	Encode(password string) (string, error)
}

// BcryptEncoder hashes the password with a fresh random salt on every call,
// so the plaintext never leaves the process.
type BcryptEncoder struct {
	// Cost is the bcrypt work factor. Zero means 10.
	Cost int
}

func (e BcryptEncoder) Encode(password string) (string, error) {
	cost := e.Cost
	if cost == 0 {
		cost = 10
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// PlaintextEncoder sends the password unchanged.
type PlaintextEncoder struct{}

func (PlaintextEncoder) Encode(password string) (string, error) {
	return password, nil
}

// EncoderByName maps a configuration value to an encoder.
func EncoderByName(name string) (PasswordEncoder, error) {
	switch name {
	case "bcrypt", "":
		return BcryptEncoder{}, nil
	case "plaintext":
		return PlaintextEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown password encoding %q", name)
	}
}
