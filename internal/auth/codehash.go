package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// CodeHasher stores OTPs the way passwords are stored: only the bcrypt hash
// ever reaches the database.
type CodeHasher struct {
	cost int
}

func NewCodeHasher(cost int) *CodeHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CodeHasher{cost: cost}
}

// Hash hashes a plaintext code
func (h *CodeHasher) Hash(code string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Matches compares a plaintext code with a stored hash
func (h *CodeHasher) Matches(code, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	return err == nil
}
