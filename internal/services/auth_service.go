package services

import (
	"context"
	"crypto/subtle"

	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/pkg/jwt"
	"golang.org/x/crypto/bcrypt"
)

// RoleOperator is the role carried by operator tokens
const RoleOperator = "operator"

// AuthService defines the interface for operator authentication
type AuthService interface {
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
}

type authService struct {
	admin  config.AdminConfig
	tokens *jwt.TokenService
}

// NewAuthService creates a new AuthService backed by the configured
// operator credentials
func NewAuthService(admin config.AdminConfig, tokens *jwt.TokenService) AuthService {
	return &authService{admin: admin, tokens: tokens}
}

// Login checks the operator credentials and issues a token
func (s *authService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if s.admin.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.admin.Username)) == 1
	// Always run bcrypt so an unknown username costs the same as a bad password.
	passErr := bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(req.Password))
	if !userOK || passErr != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(req.Username, RoleOperator)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{
		Token:     token,
		ExpiresIn: int(s.tokens.TTL().Seconds()),
	}, nil
}
