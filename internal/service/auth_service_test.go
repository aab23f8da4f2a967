package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/testutil"
	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRegisterCreatesDeveloper(t *testing.T) {
	env := newTestEnv(t)

	user, token, err := env.auth.Register(testMeta, RegisterInput{
		Username: "newdev",
		Email:    "NewDev@Example.com",
		Password: "SecurePass123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, models.RoleDeveloper, user.Role)
	assert.Equal(t, "newdev@example.com", user.Email)
	assert.Len(t, env.auditRows(t, models.ActionUserRegister), 1)

	authed, err := env.auth.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	_, _, err = env.auth.Register(testMeta, RegisterInput{Username: "another", Email: "newdev@example.com", Password: "SecurePass123"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, _, err = env.auth.Register(testMeta, RegisterInput{Username: "newdev", Email: "other@example.com", Password: "SecurePass123"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, _, err = env.auth.Register(testMeta, RegisterInput{Username: "shorty", Email: "shorty@example.com", Password: "short"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// Another registration for the same email commits after the pre-checks ran
func TestRegisterRaceIsConflict(t *testing.T) {
	env := newTestEnv(t)

	afterFirstQuery(t, env.db, "users", func(tx *gorm.DB) {
		err := tx.Session(&gorm.Session{NewDB: true}).Create(&models.User{
			Username:     "early",
			Email:        "racer@example.com",
			PasswordHash: "x",
			Role:         models.RoleDeveloper,
			IsActive:     true,
		}).Error
		require.NoError(t, err)
	})

	_, _, err := env.auth.Register(testMeta, RegisterInput{
		Username: "racer",
		Email:    "racer@example.com",
		Password: "SecurePass123",
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.Empty(t, env.auditRows(t, models.ActionUserRegister))
}

func TestLoginAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	dev := env.user(t, "dev", models.RoleDeveloper)

	// unknown email: no actor
	_, _, err := env.auth.Login(testMeta, "ghost@example.com", testutil.DefaultPassword)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	// wrong password: the account is actor and target
	_, _, err = env.auth.Login(testMeta, dev.Email, "WrongPassword")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, "invalid email or password", err.Error())

	failed := env.auditRows(t, models.ActionLoginFailed)
	require.Len(t, failed, 2)
	assert.Nil(t, failed[0].ActorID)
	assert.Equal(t, models.SeverityWarning, failed[0].Severity)
	assert.Equal(t, "unknown_email", failed[0].Changes["reason"])
	require.NotNil(t, failed[1].ActorID)
	assert.Equal(t, dev.ID, *failed[1].ActorID)
	assert.Equal(t, dev.ID, *failed[1].TargetUserID)

	user, token, err := env.auth.Login(testMeta, "DEV@example.com", testutil.DefaultPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotNil(t, user.LastLogin)

	logins := env.auditRows(t, models.ActionUserLogin)
	require.Len(t, logins, 1)
	assert.Equal(t, "service-test", logins[0].UserAgent)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	dev := env.user(t, "dev", models.RoleDeveloper)
	require.NoError(t, env.users.UpdateActive(dev.ID, false))

	_, _, err := env.auth.Login(testMeta, dev.Email, testutil.DefaultPassword)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	failed := env.auditRows(t, models.ActionLoginFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "account_inactive", failed[0].Changes["reason"])
}

func TestAuthenticateRejectsDeactivatedUser(t *testing.T) {
	env := newTestEnv(t)
	dev := env.user(t, "dev", models.RoleDeveloper)

	_, token, err := env.auth.Login(testMeta, dev.Email, testutil.DefaultPassword)
	require.NoError(t, err)

	require.NoError(t, env.users.UpdateActive(dev.ID, false))
	_, err = env.auth.Authenticate(token)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = env.auth.Authenticate("not-a-token")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	dev := env.user(t, "dev", models.RoleDeveloper)

	// unknown emails are silently ignored
	env.auth.RequestPasswordReset(ctx, testMeta, "ghost@example.com")
	assert.Empty(t, env.mailer.Last())

	env.auth.RequestPasswordReset(ctx, testMeta, dev.Email)
	link := env.mailer.Last()
	require.NotEmpty(t, link)

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)

	err = env.auth.ResetPassword(testMeta, "bogus", "NewPassword123")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	require.NoError(t, env.auth.ResetPassword(testMeta, token, "NewPassword123"))

	// single use
	err = env.auth.ResetPassword(testMeta, token, "AnotherPass123")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, _, err = env.auth.Login(testMeta, dev.Email, testutil.DefaultPassword)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, _, err = env.auth.Login(testMeta, dev.Email, "NewPassword123")
	assert.NoError(t, err)

	completed := env.auditRows(t, models.ActionPasswordResetCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, models.SeverityWarning, completed[0].Severity)
}

func TestPasswordResetTokenExpires(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	dev := env.user(t, "dev", models.RoleDeveloper)

	env.auth.RequestPasswordReset(ctx, testMeta, dev.Email)
	parsed, err := url.Parse(env.mailer.Last())
	require.NoError(t, err)

	env.auth.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	err = env.auth.ResetPassword(testMeta, parsed.Query().Get("token"), "NewPassword123")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestNewResetRequestInvalidatesOlderToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	dev := env.user(t, "dev", models.RoleDeveloper)

	env.auth.RequestPasswordReset(ctx, testMeta, dev.Email)
	first, err := url.Parse(env.mailer.Last())
	require.NoError(t, err)

	env.auth.RequestPasswordReset(ctx, testMeta, dev.Email)
	second, err := url.Parse(env.mailer.Last())
	require.NoError(t, err)

	err = env.auth.ResetPassword(testMeta, first.Query().Get("token"), "NewPassword123")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.NoError(t, env.auth.ResetPassword(testMeta, second.Query().Get("token"), "NewPassword123"))
}
