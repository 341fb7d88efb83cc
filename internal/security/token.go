package security

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

// TokenService validates bearer tokens issued by the platform's auth service
// and extracts the principal. Token issuance lives elsewhere; this service
// only parses.
type TokenService struct {
	secret []byte
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// Parse validates a token and returns the principal it carries. Expected
// claims: sub (principal id), role, status.
func (t *TokenService) Parse(tokenStr string) (*domain.Principal, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenMalformed
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subject", jwt.ErrTokenMalformed)
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = string(domain.RoleUser)
	}
	status, _ := claims["status"].(string)

	return &domain.Principal{
		ID:     sub,
		Role:   domain.Role(role),
		Status: status,
	}, nil
}
