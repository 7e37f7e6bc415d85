package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memora-music/server/internal/shared/config"
)

const testSecret = "test-secret-key"

func newManager() *JWTManager {
	return NewJWTManager(&config.AuthConfig{JWTSecret: testSecret, Issuer: "memora"})
}

func signToken(t *testing.T, claims Claims, secret string, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() Claims {
	return Claims{
		Email: "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "memora",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestValidate_OK(t *testing.T) {
	m := newManager()
	token := signToken(t, validClaims(), testSecret, jwt.SigningMethodHS256)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID())
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestValidate_WrongSecret(t *testing.T) {
	m := newManager()
	token := signToken(t, validClaims(), "other-secret", jwt.SigningMethodHS256)

	_, err := m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Expired(t *testing.T) {
	m := newManager()
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token := signToken(t, claims, testSecret, jwt.SigningMethodHS256)

	_, err := m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_WrongIssuer(t *testing.T) {
	m := newManager()
	claims := validClaims()
	claims.Issuer = "someone-else"
	token := signToken(t, claims, testSecret, jwt.SigningMethodHS256)

	_, err := m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_MissingSubject(t *testing.T) {
	m := newManager()
	claims := validClaims()
	claims.Subject = ""
	token := signToken(t, claims, testSecret, jwt.SigningMethodHS256)

	_, err := m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Garbage(t *testing.T) {
	m := newManager()
	_, err := m.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
