// Package auth handles the session tokens that authenticate the live
// connection handshake. Tokens are issued by the external session store; this
// package only parses and, for the dev harness, signs them.
package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"shoply/livechat/internal/models"
)

var (
	ErrTokenInvalid = errors.New("auth: token is invalid")
	ErrTokenExpired = errors.New("auth: token has expired")
)

// Claims are the livechat claims embedded in a session token.
type Claims struct {
	ParticipantID string      `json:"participant_id"`
	Role          models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Sign issues a session token. Used by the dev harness; production tokens come
// from the external session store.
func Sign(secret []byte, participantID string, role models.Role, ttl time.Duration) (string, error) {
	claims := &Claims{
		ParticipantID: participantID,
		Role:          role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "shoply-livechat",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Verify validates the signature and expiry of a session token and returns
// its claims.
func Verify(secret []byte, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.ParticipantID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// SessionFromToken builds a Session from an externally issued token without
// verifying its signature. The client has no signing secret; verification is
// the server's job at handshake time.
func SessionFromToken(tokenString string) (models.Session, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return models.Session{}, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ParticipantID == "" {
		return models.Session{}, ErrTokenInvalid
	}
	return models.Session{
		ParticipantID: claims.ParticipantID,
		Role:          claims.Role,
		AuthToken:     tokenString,
	}, nil
}
