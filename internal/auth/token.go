package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
)

// TokenTTL is the bearer token lifetime: 60 days from issuance.
const TokenTTL = 60 * 24 * time.Hour

// Claims is the payload of a Lodestone bearer token: just the uid and the
// registered expiry, per §4.2 — no role or username, since both can change
// independently of the token's validity.
type Claims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// IssueToken signs a bearer token for the user using their own per-user
// secret, HS512. Rotating the user's Secret invalidates every token issued
// under the old one, with no blacklist required.
func IssueToken(u User) (string, error) {
	now := time.Now()
	claims := Claims{
		UID: u.UID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString([]byte(u.Secret))
}

// SecretLookup resolves a user's current signing secret by uid, without
// revealing whether the uid exists (a lookup miss and a lookup hit both
// yield a deterministic empty-ish path through ValidateToken).
type SecretLookup func(uid string) (secret string, ok bool)

// ValidateToken performs the two-step validation required by §4.2: decode
// without verifying signature to read the claimed uid, look up that uid's
// secret, then verify the signature against that secret and require the
// verified claims' uid match the claimed one. Any failure at any step
// collapses to Unauthorized — this function never distinguishes "unknown
// user" from "bad signature" to the caller.
func ValidateToken(tokenString string, lookup SecretLookup) (string, error) {
	claimedUID, err := peekUID(tokenString)
	if err != nil {
		return "", coreerrors.UnauthorizedError("invalid token")
	}

	secret, ok := lookup(claimedUID)
	if !ok {
		return "", coreerrors.UnauthorizedError("invalid token")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", coreerrors.UnauthorizedError("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UID != claimedUID {
		return "", coreerrors.UnauthorizedError("invalid token")
	}

	return claims.UID, nil
}

// peekUID decodes the token's claims without verifying its signature, used
// only to learn which user's secret to fetch.
func peekUID(tokenString string) (string, error) {
	parser := jwt.NewParser()
	var claims Claims
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return "", err
	}
	if claims.UID == "" {
		return "", errors.New("token carries no uid")
	}
	return claims.UID, nil
}
