package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/shashiranjanraj/vidorder/app/models"
	"github.com/shashiranjanraj/vidorder/app/repositories"
	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/auth"
	"github.com/shashiranjanraj/vidorder/pkg/bind"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
)

const invalidCredentials = "Invalid email or password"

// RegisterInput is the self-registration payload. Role is not accepted.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// Normalize trims the name and canonicalises the email.
func (in *RegisterInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (in *LoginInput) Normalize() { in.Email = normalizeEmail(in.Email) }

// AuthResult is returned by register and login.
type AuthResult struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Token string `json:"token"`
}

type AuthService struct {
	users  repositories.UserRepository
	tokens *auth.Tokens
}

func NewAuthService(users repositories.UserRepository, tokens *auth.Tokens) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user account with role user.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Normalize()
	if err := bind.Struct(in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	now := utcNow()
	u := &models.User{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		Password:  hash,
		Role:      auth.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperr.Conflict("User already exists")
		}
		return nil, apperr.Internal("create user", err)
	}

	logger.WithCtx(ctx).Info("user registered", "user_id", u.ID)
	return s.issue(u)
}

// Login checks credentials. Unknown email and wrong password produce the
// same error.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Normalize()
	if err := bind.Struct(in); err != nil {
		return nil, err
	}

	u, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperr.Auth(invalidCredentials)
	}
	if err != nil {
		return nil, apperr.Internal("find user", err)
	}

	if !auth.CheckPassword(u.Password, in.Password) {
		return nil, apperr.Auth(invalidCredentials)
	}
	return s.issue(u)
}

// Authenticate resolves a bearer token to the identity of a user that
// still exists.
func (s *AuthService) Authenticate(ctx context.Context, token string) (auth.Identity, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return auth.Identity{}, apperr.Auth("Not authorized, token failed")
	}

	u, err := s.users.FindByID(ctx, claims.Subject)
	if errors.Is(err, repositories.ErrNotFound) {
		return auth.Identity{}, apperr.Auth("Not authorized, user not found")
	}
	if err != nil {
		return auth.Identity{}, apperr.Internal("find user", err)
	}
	return u.Identity(), nil
}

// Me returns the caller's public profile.
func (s *AuthService) Me(id auth.Identity) auth.Identity { return id }

func (s *AuthService) issue(u *models.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(u.ID, u.Role)
	if err != nil {
		return nil, apperr.Internal("sign token", err)
	}
	return &AuthResult{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Token: token}, nil
}
