package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	mgr := NewJWTManager("test-secret-key-123", 0)
	token, err := mgr.GenerateAccessToken("user-42")
	if err != nil {
		t.Fatalf("generate access token: %v", err)
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != "user-42" || claims.Subject != "user-42" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != Issuer {
		t.Errorf("issuer = %q", claims.Issuer)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != DefaultTokenTTL {
		t.Errorf("lifetime = %v, want %v", got, DefaultTokenTTL)
	}
}

func TestGenerateAccessTokenRequiresUser(t *testing.T) {
	if _, err := NewJWTManager("s", time.Hour).GenerateAccessToken(""); err == nil {
		t.Error("expected an error for an empty user id")
	}
}

func TestValidateTokenRejects(t *testing.T) {
	mgr := NewJWTManager("secret-one", time.Hour)
	good, _ := mgr.GenerateAccessToken("user-1")

	expired := NewJWTManager("secret-one", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.GenerateAccessToken("user-1")

	foreign, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere"},
	}).SignedString([]byte("secret-one"))

	tests := []struct {
		name  string
		mgr   *JWTManager
		token string
		want  error
	}{
		{"wrong secret", NewJWTManager("secret-two", time.Hour), good, ErrInvalidToken},
		{"expired", mgr, old, ErrInvalidToken},
		{"wrong issuer", mgr, foreign, ErrInvalidToken},
		{"garbage", mgr, "not.a.token", ErrInvalidToken},
		{"empty", mgr, "", ErrMissingToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.mgr.ValidateToken(tc.token); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}
