package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vbonduro/shopscan/internal/domain"
)

// MinPasswordLength is the shortest password SignUp accepts.
const MinPasswordLength = 6

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenRevoked is returned by Verify for a signed-out token.
	ErrTokenRevoked = errors.New("token revoked")
)

type userRepository interface {
	Create(ctx context.Context, email, passwordHash string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type tokenRepository interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// shopProvisioner creates the shop profile for a user on first use.
type shopProvisioner interface {
	EnsureShop(ctx context.Context, userID, email, shopName string) (*domain.Shop, error)
}

// Identity is the result of a successful sign-up or sign-in.
type Identity struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
	Shop  *domain.Shop `json:"shop"`
}

// Provider authenticates shopkeepers with bcrypt password hashes and
// signed tokens.
type Provider struct {
	users  userRepository
	tokens tokenRepository
	shops  shopProvisioner
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
	parser *jwt.Parser
	logger *slog.Logger
}

func NewProvider(users userRepository, tokens tokenRepository, shops shopProvisioner, secret string, logger *slog.Logger) *Provider {
	p := &Provider{
		users:  users,
		tokens: tokens,
		shops:  shops,
		secret: []byte(secret),
		ttl:    TokenExpiry,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: logger,
	}
	p.parser = p.newParser()
	return p
}

// SignUp registers a user and provisions its shop.
func (p *Provider) SignUp(ctx context.Context, email, password, shopName string) (*Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user, err := p.users.Create(ctx, email, string(hash))
	if err != nil {
		return nil, err
	}
	p.logger.Info("user signed up", "user_id", user.ID)
	return p.issue(ctx, user, shopName)
}

// SignIn checks the password and returns a fresh token. A missing shop
// profile is created on the way.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	user, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		p.logger.Warn("sign in failed", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	return p.issue(ctx, user, "")
}

// SignOut revokes the token so Verify rejects it until it expires.
func (p *Provider) SignOut(ctx context.Context, claims *Claims) error {
	expires := p.now().Add(p.ttl)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	if err := p.tokens.Revoke(ctx, claims.ID, expires); err != nil {
		return err
	}
	p.logger.Info("user signed out", "user_id", claims.UserID)
	return nil
}

// Verify validates a bearer token and checks it has not been revoked.
func (p *Provider) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := p.parseToken(token)
	if err != nil {
		return nil, err
	}
	revoked, err := p.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

func (p *Provider) issue(ctx context.Context, user *domain.User, shopName string) (*Identity, error) {
	shop, err := p.shops.EnsureShop(ctx, user.ID, user.Email, shopName)
	if err != nil {
		return nil, err
	}
	token, err := p.signToken(user)
	if err != nil {
		return nil, err
	}
	return &Identity{Token: token, User: user, Shop: shop}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", domain.ErrValidation)
	}
	return email, nil
}
