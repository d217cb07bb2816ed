package testutil

import (
	"testing"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// AccessToken signs a short-lived HS256 token for userID.
func AccessToken(t *testing.T, secret string, userID uint) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	return signed
}
