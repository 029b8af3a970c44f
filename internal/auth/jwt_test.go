package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

func TestGenerateAndValidate(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)

	token, expiresAt, err := m.GenerateAccessToken("user-1", "ana@example.cl", "customer")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ana@example.cl", claims.Email)
	assert.Equal(t, "customer", claims.Role)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestValidate_WrongSecret(t *testing.T) {
	token, _, err := NewJWTManager(testSecret, time.Hour).GenerateAccessToken("user-1", "a@b.cl", "customer")
	require.NoError(t, err)

	_, err = NewJWTManager("another-secret-another-secret-xx", time.Hour).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidate_Expired(t *testing.T) {
	m := NewJWTManager(testSecret, time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := m.GenerateAccessToken("user-1", "a@b.cl", "customer")
	require.NoError(t, err)

	_, err = NewJWTManager(testSecret, time.Minute).ValidateAccessToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewJWTManager(testSecret, time.Hour).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidate_RejectsForeignIssuer(t *testing.T) {
	claims := &Claims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewJWTManager(testSecret, time.Hour).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidator_MapsClaims(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)
	token, _, err := m.GenerateAccessToken("admin-1", "admin@myn.cl", "admin")
	require.NoError(t, err)

	claims, err := m.Validator()(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)

	_, err = m.Validator()("garbage")
	assert.Error(t, err)
}
