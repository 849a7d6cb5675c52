package seeders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shashiranjanraj/vidorder/app/models"
	"github.com/shashiranjanraj/vidorder/app/repositories"
	"github.com/shashiranjanraj/vidorder/config"
	"github.com/shashiranjanraj/vidorder/pkg/auth"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
)

func init() {
	Register("admin", SeedAdmin)
}

// SeedAdmin creates the administrator named by ADMIN_EMAIL and
// ADMIN_PASSWORD. It is a no-op when either is unset or the account exists.
func SeedAdmin(ctx context.Context, s Stores) error {
	email := strings.ToLower(strings.TrimSpace(config.Get("ADMIN_EMAIL", "")))
	password := config.Get("ADMIN_PASSWORD", "")
	if email == "" || password == "" {
		logger.Warn("seed: ADMIN_EMAIL or ADMIN_PASSWORD not set, skipping admin")
		return nil
	}

	if _, err := s.Users.FindByEmail(ctx, email); err == nil {
		logger.Info("seed: admin already exists", "email", email)
		return nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	u := &models.User{
		ID:        uuid.NewString(),
		Name:      config.Get("ADMIN_NAME", "Administrator"),
		Email:     email,
		Password:  hash,
		Role:      auth.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		return err
	}

	logger.Info("seed: admin created", "email", email, "user_id", u.ID)
	return nil
}
