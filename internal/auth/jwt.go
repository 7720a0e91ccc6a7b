// Package auth issues and verifies the bearer tokens used by the API and
// hashes account passwords.
package auth

import (
	"errors"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// Issuer signs and verifies HS256 tokens carrying the user id as subject.
type Issuer struct {
	secret  []byte
	expires time.Duration
}

func NewIssuer(secret string, expires time.Duration) *Issuer {
	if expires <= 0 {
		expires = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), expires: expires}
}

func (i *Issuer) Issue(userID string) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: i.secret}, nil)
	if err != nil {
		return "", err
	}

	claims := jwt.Claims{
		Subject: userID,
		Expiry:  jwt.NewNumericDate(time.Now().Add(i.expires)),
	}
	return jwt.Signed(signer).Claims(claims).Serialize()
}

// Verify checks signature and expiry and returns the subject user id.
func (i *Issuer) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	tok, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", ErrInvalidToken
	}

	var claims jwt.Claims
	if err := tok.Claims(i.secret, &claims); err != nil {
		return "", ErrInvalidToken
	}
	if claims.Expiry != nil && claims.Expiry.Time().Before(time.Now()) {
		return "", ErrTokenExpired
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
