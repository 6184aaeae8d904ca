package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const digits = "0123456789"

// GenerateOTP returns a numeric code of the given length. Each digit is drawn
// independently, so leading zeros are as likely as any other digit.
func GenerateOTP(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid OTP length %d", length)
	}

	code := make([]byte, length)
	max := big.NewInt(int64(len(digits)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate OTP: %w", err)
		}
		code[i] = digits[n.Int64()]
	}
	return string(code), nil
}
