package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/config"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

func newAuthService(t *testing.T) (*AuthService, *memUsers) {
	t.Helper()
	users := newMemUsers()
	as := NewAuthService(users, config.InitializeDefaultConfig().Security, zap.NewNop(), metrics.NewMetricsCollector())
	t.Cleanup(as.Stop)
	return as, users
}

func TestSignUpAndSignIn(t *testing.T) {
	as, _ := newAuthService(t)
	ctx := context.Background()

	user, token, err := as.SignUp(ctx, " Ada@Example.com ", "hunter22", "Ada", "127.0.0.1", "test")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "hunter22", user.PasswordHash)

	current, err := as.CurrentUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, current.ID)

	signedIn, token2, err := as.SignIn(ctx, "ada@example.com", "hunter22", "127.0.0.1", "test")
	require.NoError(t, err)
	assert.Equal(t, user.ID, signedIn.ID)
	assert.NotEqual(t, token, token2)
}

func TestSignUpValidation(t *testing.T) {
	as, _ := newAuthService(t)
	ctx := context.Background()

	_, _, err := as.SignUp(ctx, "not-an-email", "hunter22", "", "", "")
	assert.Equal(t, apperr.KindInvalid, apperr.Classify(err))

	_, _, err = as.SignUp(ctx, "ada@example.com", "abc", "", "", "")
	assert.Equal(t, apperr.KindInvalid, apperr.Classify(err))

	_, _, err = as.SignUp(ctx, "ada@example.com", "hunter22", "", "", "")
	require.NoError(t, err)
	_, _, err = as.SignUp(ctx, "ADA@example.com", "hunter22", "", "", "")
	assert.Equal(t, apperr.KindInvalid, apperr.Classify(err))
	assert.Equal(t, "An account with this email already exists.", apperr.Message(err))
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	as, _ := newAuthService(t)
	ctx := context.Background()
	_, _, err := as.SignUp(ctx, "ada@example.com", "hunter22", "", "", "")
	require.NoError(t, err)

	_, _, err = as.SignIn(ctx, "ada@example.com", "wrong-password", "", "")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = as.SignIn(ctx, "nobody@example.com", "hunter22", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 401, apperr.Status(err))
}

func TestLogoutAndExpiry(t *testing.T) {
	as, _ := newAuthService(t)
	ctx := context.Background()
	_, token, err := as.SignUp(ctx, "ada@example.com", "hunter22", "", "", "")
	require.NoError(t, err)

	as.Logout(token)
	_, err = as.CurrentUser(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, token, err = as.SignIn(ctx, "ada@example.com", "hunter22", "", "")
	require.NoError(t, err)
	as.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, ok := as.IsValidSession(token)
	assert.False(t, ok)

	as.cleanupExpiredSessions()
	as.sessionStore.mutex.RLock()
	assert.Empty(t, as.sessionStore.sessions)
	as.sessionStore.mutex.RUnlock()
}
