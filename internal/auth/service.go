package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"receipt-overseer/internal/models"
	"receipt-overseer/internal/repositories"
)

var ErrInvalidUsername = errors.New("username must not be empty")

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int, error)
}

// UserStore is the persistence the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)
	GetUserByID(ctx context.Context, id int) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
}

// Service registers users, issues tokens and validates them.
type Service struct {
	users UserStore
	jwt   *JWTManager
}

func NewService(users UserStore, jwt *JWTManager) *Service {
	return &Service{users: users, jwt: jwt}
}

// Register creates an account; the username must be unused.
func (s *Service) Register(ctx context.Context, username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, ErrInvalidUsername
	}
	if err := ValidatePassword(password); err != nil {
		return models.User{}, err
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return models.User{}, repositories.ErrUsernameTaken
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, err
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	user, err := s.users.CreateUser(ctx, username, hashed)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and returns a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, models.User, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return "", models.User{}, ErrInvalidCredentials
		}
		return "", models.User{}, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return "", models.User{}, ErrInvalidCredentials
	}

	token, err := s.jwt.Generate(user)
	if err != nil {
		return "", models.User{}, err
	}
	return token, user, nil
}

// ValidateToken returns the id of the still-existing user the token was issued to.
func (s *Service) ValidateToken(ctx context.Context, token string) (int, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return 0, err
	}
	if _, err := s.users.GetUserByID(ctx, claims.UserID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return 0, ErrInvalidToken
		}
		return 0, err
	}
	return claims.UserID, nil
}

// ChangePassword replaces the password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, userID int, oldPassword, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(user.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hashed, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hashed)
}
