package service

import (
	"context"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/pkg/logger"
	"go.uber.org/zap"
)

// Mailer delivers password reset links
type Mailer interface {
	SendPasswordReset(ctx context.Context, user *models.User, resetURL string) error
}

// LogMailer writes the reset link to the log instead of sending mail
type LogMailer struct{}

func (LogMailer) SendPasswordReset(ctx context.Context, user *models.User, resetURL string) error {
	logger.Log.Info("Password reset link issued",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email),
		zap.String("reset_url", resetURL),
	)
	return nil
}
