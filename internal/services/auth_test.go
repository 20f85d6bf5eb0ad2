package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key"

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestUserIDFromToken(t *testing.T) {
	svc, err := NewAuthService(newTestLogger(t), testSecret)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	tokenString := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	userID, err := svc.UserIDFromToken(tokenString)
	if err != nil {
		t.Fatalf("UserIDFromToken: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("userID = %q, want user-123", userID)
	}
}

func TestUserIDFromTokenRejections(t *testing.T) {
	svc, err := NewAuthService(newTestLogger(t), testSecret)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, "other-secret", jwt.MapClaims{"sub": "u"})},
		{"expired", signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "u",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{"missing subject", signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"wrong algorithm", signToken(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"sub": "u"})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UserIDFromToken(tc.token); err == nil {
				t.Error("expected rejection")
			}
		})
	}
}

func TestNewAuthServiceRequiresSecret(t *testing.T) {
	if _, err := NewAuthService(newTestLogger(t), "  "); err == nil {
		t.Error("expected error for blank secret")
	}
}
