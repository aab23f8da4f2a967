package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/internal/utils"
	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/Baaaki/component-review/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	invalidCredentialsMessage = "invalid email or password"
	PasswordResetMessage      = "if an account exists for this email, a reset link has been sent"
	invalidResetTokenMessage  = "invalid or expired reset token"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type AuthService struct {
	db            *gorm.DB
	userRepo      *repository.UserRepository
	resetRepo     *repository.PasswordResetRepository
	audit         *AuditRecorder
	mailer        Mailer
	jwtSecret     string
	jwtExpiration time.Duration
	resetTTL      time.Duration
	frontendURL   string
	now           func() time.Time
}

func NewAuthService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	resetRepo *repository.PasswordResetRepository,
	audit *AuditRecorder,
	mailer Mailer,
	jwtSecret string,
	jwtExpiration time.Duration,
	resetTTL time.Duration,
	frontendURL string,
) *AuthService {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &AuthService{
		db:            db,
		userRepo:      userRepo,
		resetRepo:     resetRepo,
		audit:         audit,
		mailer:        mailer,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		resetTTL:      resetTTL,
		frontendURL:   frontendURL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a developer account and returns it with an access token
func (s *AuthService) Register(meta RequestMeta, input RegisterInput) (*models.User, string, error) {
	start := time.Now()

	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	// 1. Validate input
	if err := validateRegisterInput(input); err != nil {
		logger.Log.Warn("Registration validation failed",
			zap.String("username", input.Username),
			zap.Error(err),
		)
		return nil, "", err
	}

	// 2. Uniqueness
	existing, err := s.userRepo.GetUserByEmail(input.Email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", apperror.Conflict("email already registered")
	}
	existing, err = s.userRepo.GetUserByUsername(input.Username)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", apperror.Conflict("username already taken")
	}

	// 3. Hash password (Argon2id)
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		logger.Log.Error("Failed to hash password", zap.Error(err))
		return nil, "", err
	}

	// 4. Create user; role is always developer at registration
	user := &models.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hashed,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         models.RoleDeveloper,
		IsActive:     true,
	}
	if err := s.userRepo.CreateUser(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", apperror.Conflict("email or username already registered")
		}
		logger.Log.Error("Failed to create user in database",
			zap.String("username", input.Username),
			zap.Error(err),
		)
		return nil, "", err
	}

	s.audit.Record(AuditEntry{
		Action:      models.ActionUserRegister,
		Actor:       user,
		TargetUser:  &user.ID,
		Description: fmt.Sprintf("New account registered: %s", user.Username),
		Severity:    models.SeverityInfo,
		Meta:        meta,
	})

	// 5. Issue token
	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		logger.Log.Error("Failed to generate JWT token",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return nil, "", err
	}

	logger.Log.Info("User registered successfully",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.Duration("total_duration", time.Since(start)),
	)
	return user, token, nil
}

// Login returns the same error for every failure; the audit row tells them apart.
func (s *AuthService) Login(meta RequestMeta, email, password string) (*models.User, string, error) {
	start := time.Now()
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.GetUserByEmail(email)
	if err != nil {
		logger.Log.Error("Failed to get user by email", zap.Error(err))
		return nil, "", err
	}
	if user == nil {
		s.audit.Record(AuditEntry{
			Action:      models.ActionLoginFailed,
			Description: fmt.Sprintf("Failed login attempt with unknown email %s", email),
			Changes:     map[string]interface{}{"reason": "unknown_email", "email": email},
			Severity:    models.SeverityWarning,
			Meta:        meta,
		})
		logger.Log.Warn("Login failed: user not found", zap.String("email", email))
		return nil, "", apperror.Unauthorized(invalidCredentialsMessage)
	}

	valid, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		logger.Log.Error("Failed to verify password",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return nil, "", err
	}
	if !valid {
		s.audit.Record(AuditEntry{
			Action:      models.ActionLoginFailed,
			Actor:       user,
			TargetUser:  &user.ID,
			Description: fmt.Sprintf("Failed login for %s: wrong password", user.Username),
			Changes:     map[string]interface{}{"reason": "wrong_password"},
			Severity:    models.SeverityWarning,
			Meta:        meta,
		})
		logger.Log.Warn("Login failed: invalid password", zap.String("user_id", user.ID.String()))
		return nil, "", apperror.Unauthorized(invalidCredentialsMessage)
	}
	if !user.IsActive {
		s.audit.Record(AuditEntry{
			Action:      models.ActionLoginFailed,
			Actor:       user,
			TargetUser:  &user.ID,
			Description: fmt.Sprintf("Login attempt on deactivated account %s", user.Username),
			Changes:     map[string]interface{}{"reason": "account_inactive"},
			Severity:    models.SeverityWarning,
			Meta:        meta,
		})
		logger.Log.Warn("Login failed: account inactive", zap.String("user_id", user.ID.String()))
		return nil, "", apperror.Unauthorized(invalidCredentialsMessage)
	}

	now := s.now()
	if err := s.userRepo.UpdateLastLogin(user.ID, now); err != nil {
		logger.Log.Warn("Failed to update last login", zap.String("user_id", user.ID.String()), zap.Error(err))
	} else {
		user.LastLogin = &now
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		return nil, "", err
	}

	s.audit.Record(AuditEntry{
		Action:      models.ActionUserLogin,
		Actor:       user,
		TargetUser:  &user.ID,
		Description: fmt.Sprintf("%s logged in", user.Username),
		Severity:    models.SeverityInfo,
		Meta:        meta,
	})

	logger.Log.Info("User logged in successfully",
		zap.String("user_id", user.ID.String()),
		zap.Duration("total_duration", time.Since(start)),
	)
	return user, token, nil
}

// Logout only records the event; tokens are stateless
func (s *AuthService) Logout(meta RequestMeta, user *models.User) {
	s.audit.Record(AuditEntry{
		Action:      models.ActionUserLogout,
		Actor:       user,
		TargetUser:  &user.ID,
		Description: fmt.Sprintf("%s logged out", user.Username),
		Severity:    models.SeverityInfo,
		Meta:        meta,
	})
}

// Authenticate resolves a bearer token to the current, active user
func (s *AuthService) Authenticate(token string) (*models.User, error) {
	claims, err := utils.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return nil, apperror.Unauthorized("invalid or expired token")
	}
	user, err := s.userRepo.GetUserByID(claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, apperror.Unauthorized("invalid or expired token")
	}
	return user, nil
}

// RequestPasswordReset never reveals whether the email is registered
func (s *AuthService) RequestPasswordReset(ctx context.Context, meta RequestMeta, email string) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.GetUserByEmail(email)
	if err != nil {
		logger.Log.Error("Password reset lookup failed", zap.Error(err))
		return
	}
	if user == nil || !user.IsActive {
		logger.Log.Debug("Password reset requested for unknown or inactive account")
		return
	}

	plain, digest, err := utils.NewResetToken()
	if err != nil {
		logger.Log.Error("Failed to generate reset token", zap.Error(err))
		return
	}

	now := s.now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		resets := s.resetRepo.WithTx(tx)
		if err := resets.InvalidateForUser(user.ID, now); err != nil {
			return err
		}
		return resets.Create(&models.PasswordResetToken{
			UserID:    user.ID,
			TokenHash: digest,
			ExpiresAt: now.Add(s.resetTTL),
		})
	})
	if err != nil {
		logger.Log.Error("Failed to store reset token", zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}

	if err := s.mailer.SendPasswordReset(ctx, user, s.resetURL(plain)); err != nil {
		logger.Log.Error("Failed to send password reset", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	s.audit.Record(AuditEntry{
		Action:      models.ActionPasswordResetRequested,
		Actor:       user,
		TargetUser:  &user.ID,
		Description: fmt.Sprintf("Password reset requested for %s", user.Username),
		Severity:    models.SeverityInfo,
		Meta:        meta,
	})
}

// ResetPassword consumes a reset token and sets a new password
func (s *AuthService) ResetPassword(meta RequestMeta, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	record, err := s.resetRepo.GetByHash(utils.HashResetToken(token))
	if err != nil {
		return err
	}
	now := s.now()
	if record == nil || !record.Usable(now) {
		return apperror.Validation(invalidResetTokenMessage)
	}

	user, err := s.userRepo.GetUserByID(record.UserID)
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive {
		return apperror.Validation(invalidResetTokenMessage)
	}

	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}

	trail := s.audit.Begin()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		consumed, err := s.resetRepo.WithTx(tx).MarkUsed(record.ID, now)
		if err != nil {
			return err
		}
		if !consumed {
			return apperror.Validation(invalidResetTokenMessage)
		}
		if err := s.userRepo.WithTx(tx).UpdatePasswordHash(user.ID, hashed); err != nil {
			return err
		}
		trail.Record(tx, AuditEntry{
			Action:      models.ActionPasswordResetCompleted,
			Actor:       user,
			TargetUser:  &user.ID,
			Description: fmt.Sprintf("Password reset completed for %s", user.Username),
			Severity:    models.SeverityWarning,
			Meta:        meta,
		})
		return nil
	})
	trail.Settle(err)
	return err
}

func (s *AuthService) resetURL(token string) string {
	return strings.TrimRight(s.frontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

func validateRegisterInput(input RegisterInput) error {
	if len(input.Username) < 3 {
		return apperror.Validation("username must be at least 3 characters")
	}
	if len(input.Username) > 50 {
		return apperror.Validation("username must be at most 50 characters")
	}
	if !emailRegex.MatchString(input.Email) {
		return apperror.Validation("invalid email format")
	}
	if len(input.Email) > 100 {
		return apperror.Validation("email too long")
	}
	return validatePassword(input.Password)
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return apperror.Validation("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return apperror.Validation("password too long")
	}
	return nil
}
