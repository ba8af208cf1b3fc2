package storage

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer issues and verifies the short-lived tokens behind certificate
// download URLs.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

type downloadClaims struct {
	FileID       string `json:"file_id"`
	LearnerEmail string `json:"learner_email"`
	jwt.RegisteredClaims
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

func (s *Signer) Sign(fileID, learnerEmail string) (string, error) {
	now := time.Now()
	claims := downloadClaims{
		FileID:       fileID,
		LearnerEmail: learnerEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign download token: %w", err)
	}
	return signed, nil
}

// Verify returns the file id and learner email from a valid, unexpired
// token.
func (s *Signer) Verify(tokenString string) (fileID, learnerEmail string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &downloadClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("invalid download token: %w", err)
	}

	claims, ok := token.Claims.(*downloadClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid download token")
	}
	return claims.FileID, claims.LearnerEmail, nil
}
