package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpirationTime is how long the token is valid (24 hours)
const TokenExpirationTime = 24 * time.Hour

// Claims binds a token to one login session. Evicting or logging out the
// session revokes its id, so the token stops working before it expires.
type Claims struct {
	UserID    int64  `json:"user_id"`
	SessionID string `json:"sid"`
	IsAdmin   bool   `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// GenerateJWT generates a JWT token for a user session
func GenerateJWT(userID int64, sessionID string, isAdmin bool, secret string, now time.Time) (string, int, error) {
	expirationTime := now.Add(TokenExpirationTime)

	claims := &Claims{
		UserID:    userID,
		SessionID: sessionID,
		IsAdmin:   isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", 0, err
	}

	expiresIn := int(TokenExpirationTime.Seconds())
	return tokenString, expiresIn, nil
}

// ValidateJWT validates a JWT token and returns its claims
func ValidateJWT(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID <= 0 || claims.SessionID == "" {
		return nil, errors.New("token missing subject")
	}

	return claims, nil
}
