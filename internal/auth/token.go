package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vbonduro/shopscan/internal/domain"
)

// TokenExpiry is how long a bearer token stays valid.
const TokenExpiry = 7 * 24 * time.Hour

const tokenIssuer = "shopscan"

// ErrInvalidToken is returned for a token that is malformed, expired or
// signed with another secret.
var ErrInvalidToken = errors.New("invalid token")

// Claims identify the shopkeeper a token was issued to. The registered ID is
// the key used for revocation.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func (p *Provider) newParser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return p.now() }),
	)
}

func (p *Provider) signToken(user *domain.User) (string, error) {
	now := p.now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// parseToken checks the signature, issuer and expiry of token. A token whose
// subject does not match its user or that carries no ID cannot be revoked and
// is refused.
func (p *Provider) parseToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := p.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, fmt.Errorf("%w: incomplete claims", ErrInvalidToken)
	}
	return claims, nil
}
