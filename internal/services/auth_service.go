package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/sensus/peek/internal/logging"
	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/storage"
	"github.com/sensus/peek/internal/validation"
)

//go:generate mockgen -source=auth_service.go -destination=../../mocks/mock_auth.go -package=mocks

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// ProfileEnsurer creates a user's profile if it does not exist yet.
type ProfileEnsurer interface {
	Ensure(ctx context.Context, userID string) (*models.Profile, error)
}

type AuthConfig struct {
	AdminKey  string
	JWTSecret string
	TokenTTL  time.Duration
}

// tokenClaims are the claims of an access token. Version must match the stored
// credentials' TokenVersion for the token to be accepted.
type tokenClaims struct {
	Version int `json:"ver"`
	jwt.RegisteredClaims
}

// AuthService issues and verifies per-user bearer tokens. Passwords are stored as
// bcrypt hashes; bumping the token version revokes every older token of the user.
type AuthService struct {
	creds    storage.Credentials
	profiles ProfileEnsurer
	cfg      AuthConfig
	now      func() time.Time

	mu sync.Mutex
}

func NewAuthService(creds storage.Credentials, profiles ProfileEnsurer, cfg AuthConfig) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	return &AuthService{
		creds:    creds,
		profiles: profiles,
		cfg:      cfg,
		now:      time.Now,
	}
}

// CreateUser sets the user's password (creating the profile when missing) and returns
// a fresh token. Calling it for an existing user resets the password and revokes
// previously issued tokens.
func (s *AuthService) CreateUser(ctx context.Context, adminKey string, req models.CreateUserRequest) (*models.TokenResponse, error) {
	const op = "services.AuthService.CreateUser"

	if !s.adminKeyMatches(adminKey) {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	if fields := validation.Struct(req); fields != nil {
		return nil, fmt.Errorf("%s: %w", op, &ValidationError{Fields: fields})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%s: hash password: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	creds, err := s.creds.Credentials(ctx, req.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		creds = &models.Credentials{UserID: req.UserID, CreatedAt: now}
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	creds.PasswordHash = string(hash)
	creds.TokenVersion++
	creds.UpdatedAt = now

	if _, err := s.profiles.Ensure(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.creds.SaveCredentials(ctx, creds); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logging.Ctx(ctx).Info().Str("user", req.UserID).Int("token_version", creds.TokenVersion).Msg("credentials set")
	return s.issue(creds)
}

// Login checks the password and returns a token for the current token version.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error) {
	const op = "services.AuthService.Login"

	if fields := validation.Struct(req); fields != nil {
		return nil, fmt.Errorf("%s: %w", op, &ValidationError{Fields: fields})
	}

	creds, err := s.creds.Credentials(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	return s.issue(creds)
}

// Refresh rotates the user's token: the version is bumped, so the token used to
// call Refresh stops working.
func (s *AuthService) Refresh(ctx context.Context, userID string) (*models.TokenResponse, error) {
	const op = "services.AuthService.Refresh"

	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.creds.Credentials(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	creds.TokenVersion++
	creds.UpdatedAt = s.now().UTC()
	if err := s.creds.SaveCredentials(ctx, creds); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.issue(creds)
}

// Verify returns the user id of a valid, unexpired, unrevoked token.
func (s *AuthService) Verify(ctx context.Context, token string) (string, error) {
	const op = "services.AuthService.Verify"

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	creds, err := s.creds.Credentials(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if creds.TokenVersion != claims.Version {
		return "", fmt.Errorf("%s: token revoked: %w", op, ErrUnauthorized)
	}
	return claims.Subject, nil
}

func (s *AuthService) issue(creds *models.Credentials) (*models.TokenResponse, error) {
	now := s.now().UTC()
	exp := now.Add(s.cfg.TokenTTL)

	claims := tokenClaims{
		Version: creds.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   creds.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &models.TokenResponse{UserID: creds.UserID, Token: signed, ExpiresAt: exp}, nil
}

func (s *AuthService) adminKeyMatches(key string) bool {
	if s.cfg.AdminKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) == 1
}
