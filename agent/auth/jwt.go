// Package auth resolves the caller identity that submits are made on behalf of.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
)

const (
	claimSubject = "sub"
	claimUserID  = "user_id"
)

type JWTConfig struct {
	Secret string `required:"false"`
	Issuer string `required:"false"`
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, strings.TrimSpace(token))
}

func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// JWTProvider verifies HS256 tokens carried on the request context.
type JWTProvider struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ contract.IdentityProvider = (*JWTProvider)(nil)

func NewJWTProvider(cfg JWTConfig) (*JWTProvider, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTProvider{
		secret: []byte(cfg.Secret),
		issuer: strings.TrimSpace(cfg.Issuer),
		now:    time.Now,
	}, nil
}

func (p *JWTProvider) Identity(ctx context.Context) (contract.Identity, error) {
	raw := TokenFromContext(ctx)
	if raw == "" {
		return contract.Identity{}, fmt.Errorf("%w: token missing", contract.ErrNotAuthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return contract.Identity{}, fmt.Errorf("%w: %v", contract.ErrNotAuthenticated, err)
	}
	if !token.Valid {
		return contract.Identity{}, fmt.Errorf("%w: invalid token", contract.ErrNotAuthenticated)
	}

	userID := claimString(claims, claimUserID)
	if userID == "" {
		userID = claimString(claims, claimSubject)
	}
	if userID == "" {
		return contract.Identity{}, fmt.Errorf("%w: user id missing", contract.ErrNotAuthenticated)
	}
	return contract.Identity{UserID: userID, Token: raw}, nil
}

// GenerateToken signs a token for userID. The REPL uses it to act as a local user.
func GenerateToken(cfg JWTConfig, userID string, expiresIn time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return "", errors.New("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", errors.New("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		claimSubject: userID,
		"iat":        now.Unix(),
		"exp":        now.Add(expiresIn).Unix(),
	}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(raw))
	}
}
