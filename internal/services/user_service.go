package services

import (
	"fmt"
	"log"
	"time"

	"dojo/internal/models"
	"dojo/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is the work factor for password hashing.
const bcryptCost = 10

// UserService handles accounts: sign-up, credential verification, and the
// session tokens built on top of them.
type UserService struct {
	userRepo   repositories.UserRepository
	jwtSecret  []byte
	tokenDurat time.Duration // Duration for which JWT is valid
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repositories.UserRepository, jwtSecret string) *UserService {
	return &UserService{
		userRepo:   userRepo,
		jwtSecret:  []byte(jwtSecret),
		tokenDurat: 24 * time.Hour, // Token valid for 24 hours
	}
}

// HashPassword hashes a plaintext password with bcrypt.
func (s *UserService) HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// ComparePassword reports whether the plaintext matches the stored hash.
func (s *UserService) ComparePassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// SignUp registers a new user. A case-insensitive email collision yields
// ErrEmailTaken; any other storage error propagates unchanged.
func (s *UserService) SignUp(email, password string) (*models.User, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Email: email, Password: &hash}
	if err := s.userRepo.Create(user); err != nil {
		if repositories.IsUniqueViolation(err, models.EmailUniqueIndex) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

// Login verifies credentials against the account with the exact given email.
// It fails with ErrUserNotExists, ErrUserHasNoPassword (ghost account), or
// ErrIncorrectPassword, and returns the authenticated user on success.
func (s *UserService) Login(email, password string) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotExists, email)
	}
	if user.IsGhost() {
		return nil, ErrUserHasNoPassword
	}
	if !s.ComparePassword(password, *user.Password) {
		return nil, ErrIncorrectPassword
	}
	return user, nil
}

// GetUserProfile returns the profile for the given user ID.
func (s *UserService) GetUserProfile(id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotExists
	}
	return user, nil
}

// GetUserByEmail is a no-fail lookup used by other services; absence is
// returned as nil, not as an error.
func (s *UserService) GetUserByEmail(email string) (*models.User, error) {
	return s.userRepo.GetByEmail(email)
}

// GenerateToken issues a signed JWT for an authenticated user.
func (s *UserService) GenerateToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     time.Now().Add(s.tokenDurat).Unix(), // Token expiration time
		"iat":     time.Now().Unix(),                   // Issued at time
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *UserService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the alg is what we expect:
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		log.Printf("Token validation error: %v", err)
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
