package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"example.com/blogfeed/internal/apperr"
	"example.com/blogfeed/internal/logger"
	"example.com/blogfeed/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var logg = logger.New()

// bcryptCost matches the cost factor of existing password hashes.
const bcryptCost = 12

// CredentialStore is the part of the user store the auth service needs.
type CredentialStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Claims embedded in every session token.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Service issues and verifies bearer tokens.
type Service struct {
	users  CredentialStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New creates an auth Service. secret must not be empty.
func New(users CredentialStore, secret string, ttl time.Duration) (*Service, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// IssueToken checks the credentials and mints a session token.
// Unknown email and wrong password are both reported with status 401.
func (s *Service) IssueToken(ctx context.Context, email, password string) (*models.AuthData, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("load user by email: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("User not found").WithCode(http.StatusUnauthorized)
	}

	if err := ComparePassword(user.PasswordHash, password); err != nil {
		logg.Info("auth", "Password mismatch for user_id="+user.ID)
		return nil, apperr.InvalidCredential("Incorrect password")
	}

	token, err := s.sign(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &models.AuthData{Token: token, UserID: user.ID}, nil
}

func (s *Service) sign(userID, email string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyToken parses an Authorization header value. Missing, malformed,
// expired or forged tokens all yield the anonymous identity; rejection is
// left to each operation.
func (s *Service) VerifyToken(header string) models.Identity {
	if header == "" {
		return models.Anonymous
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return models.Anonymous
	}

	return s.ParseToken(strings.TrimSpace(parts[1]))
}

// ParseToken verifies a raw token string.
func (s *Service) ParseToken(raw string) models.Identity {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return models.Anonymous
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return models.Anonymous
	}

	return models.Authenticated(claims.UserID, claims.Email)
}

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword compares plaintext password with stored hash.
func ComparePassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
