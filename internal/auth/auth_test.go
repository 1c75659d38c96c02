package auth

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/openlot/auction-api/internal/types"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth_test.db")), &gorm.Config{
		TranslateError: true,
	})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&types.User{}))

	return NewService("test-secret", db)
}

func TestRegister(t *testing.T) {
	service := newTestService(t)

	result, err := service.Register(RegistrationRequest{
		Username: "alice",
		Email:    "alice@example.com",
		FullName: "Alice Example",
	})
	assert.NoError(t, err)
	assert.NotNil(t, result)
	check.NotEqual(t, "", result.User.UserID)
	check.NotEqual(t, "", result.User.APIKey)
	check.NotEqual(t, "", result.APISecret)

	stored, err := service.GetUser(result.User.UserID)
	assert.NoError(t, err)
	assert.NotNil(t, stored)
	check.Equal(t, "alice", stored.Username)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	service := newTestService(t)

	_, err := service.Register(RegistrationRequest{Username: "alice", Email: "alice@example.com"})
	assert.NoError(t, err)

	_, err = service.Register(RegistrationRequest{Username: "alice", Email: "other@example.com"})
	check.True(t, errors.Is(err, ErrDuplicateUser))
}

func TestGenerateToken_RoundTrip(t *testing.T) {
	service := newTestService(t)

	registered, err := service.Register(RegistrationRequest{Username: "alice", Email: "alice@example.com"})
	assert.NoError(t, err)

	token, err := service.GenerateToken(Credentials{
		APIKey:    registered.User.APIKey,
		APISecret: registered.APISecret,
	})
	assert.NoError(t, err)
	assert.NotNil(t, token)

	claims, err := service.ValidateToken(token.Token)
	assert.NoError(t, err)
	check.Equal(t, registered.User.UserID, claims.UserID)
	check.Equal(t, "alice", claims.Username)
}

func TestGenerateToken_RejectsBadCredentials(t *testing.T) {
	service := newTestService(t)

	registered, err := service.Register(RegistrationRequest{Username: "alice", Email: "alice@example.com"})
	assert.NoError(t, err)

	_, err = service.GenerateToken(Credentials{APIKey: registered.User.APIKey, APISecret: "wrong"})
	check.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = service.GenerateToken(Credentials{APIKey: "unknown", APISecret: "wrong"})
	check.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestValidateToken_RejectsForeignSignature(t *testing.T) {
	service := newTestService(t)
	other := NewService("different-secret", nil)

	registered, err := service.Register(RegistrationRequest{Username: "alice", Email: "alice@example.com"})
	assert.NoError(t, err)

	token, err := service.GenerateToken(Credentials{
		APIKey:    registered.User.APIKey,
		APISecret: registered.APISecret,
	})
	assert.NoError(t, err)

	_, err = other.ValidateToken(token.Token)
	check.Error(t, err)
}
