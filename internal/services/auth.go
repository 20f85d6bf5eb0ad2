package services

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wordbloom/analytics-backend/internal/logger"
)

// AuthService resolves a bearer credential to a user id. Credential issuance
// and session management belong to the platform's identity service; this
// backend only verifies what it is handed.
type AuthService interface {
	UserIDFromToken(tokenString string) (string, error)
}

type authService struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthService(log *logger.Logger, jwtSecretKey string) (AuthService, error) {
	secret := strings.TrimSpace(jwtSecretKey)
	if secret == "" {
		return nil, fmt.Errorf("missing JWT secret key")
	}
	return &authService{
		log:    log.With("service", "AuthService"),
		secret: []byte(secret),
	}, nil
}

func (as *authService) UserIDFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return as.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", fmt.Errorf("token missing subject")
	}
	return sub, nil
}
