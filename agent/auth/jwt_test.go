package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
)

func TestJWTProviderIdentity(t *testing.T) {
	t.Parallel()

	cfg := JWTConfig{Secret: "test-secret", Issuer: "toolflow"}
	provider, err := NewJWTProvider(cfg)
	if err != nil {
		t.Fatalf("NewJWTProvider() error = %v", err)
	}

	token, err := GenerateToken(cfg, "user-42", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	who, err := provider.Identity(WithToken(context.Background(), token))
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if who.UserID != "user-42" || who.Token != token {
		t.Fatalf("unexpected identity: %#v", who)
	}
}

func TestJWTProviderRejects(t *testing.T) {
	t.Parallel()

	cfg := JWTConfig{Secret: "test-secret", Issuer: "toolflow"}
	provider, err := NewJWTProvider(cfg)
	if err != nil {
		t.Fatalf("NewJWTProvider() error = %v", err)
	}

	wrongSecret, err := GenerateToken(JWTConfig{Secret: "other", Issuer: "toolflow"}, "user-42", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	wrongIssuer, err := GenerateToken(JWTConfig{Secret: "test-secret", Issuer: "someone-else"}, "user-42", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"iss": "toolflow",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "toolflow",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong secret", token: wrongSecret},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "expired", token: expired},
		{name: "no subject", token: noSubject},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := provider.Identity(WithToken(context.Background(), tc.token))
			if !errors.Is(err, contract.ErrNotAuthenticated) {
				t.Fatalf("expected ErrNotAuthenticated, got %v", err)
			}
		})
	}
}

func TestNewJWTProviderRequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewJWTProvider(JWTConfig{}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestStaticProvider(t *testing.T) {
	t.Parallel()

	who, err := StaticProvider{UserID: "local"}.Identity(context.Background())
	if err != nil || who.UserID != "local" {
		t.Fatalf("unexpected identity %#v err=%v", who, err)
	}

	_, err = StaticProvider{}.Identity(context.Background())
	if !errors.Is(err, contract.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}
