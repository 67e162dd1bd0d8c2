package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var jwtSecret []byte

// TokenTTL is how long a wallet session token stays valid.
const TokenTTL = 24 * time.Hour

func InitJWT(secret string) {
	if secret == "" {
		panic("JWT_SECRET is not set")
	}
	jwtSecret = []byte(secret)
}

// JWTEnabled reports whether InitJWT has been called.
func JWTEnabled() bool {
	return len(jwtSecret) > 0
}

// GenerateJWT issues a token whose subject is the lower-case wallet address.
func GenerateJWT(address string) (string, error) {
	if !JWTEnabled() {
		return "", errors.New("jwt not initialized")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   address,
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseJWT validates the token and returns the wallet address it was issued to.
func ParseJWT(tokenString string) (string, error) {
	if !JWTEnabled() {
		return "", errors.New("jwt not initialized")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("subject not found")
	}
	return claims.Subject, nil
}
