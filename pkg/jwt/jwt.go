package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "school_messenger/pkg/errors"
)

type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	SchoolID int64     `json:"school_id"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs a session token carrying the user and the
// school it belongs to.
func GenerateAccessToken(userID uuid.UUID, schoolID int64, secret string, ttl time.Duration, issuer string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		SchoolID: schoolID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAccessToken validates the signature and expiry and returns the claims.
// Expired tokens map to ErrTokenExpired so the handshake can surface them
// distinctly from malformed ones.
func ParseAccessToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}
	if !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}
