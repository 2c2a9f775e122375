package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"immersia-backend/internal/middleware"
	"immersia-backend/internal/models"
	"immersia-backend/internal/repository"
)

// SessionCookieName is the cookie the web app sets at login and the relay
// forwards on token fetches.
const SessionCookieName = "immersia_session"

const sessionTTL = 30 * 24 * time.Hour

// AuthService backs the session login and the short-lived credential mint
// the extension relay depends on. Sessions live in Redis; the minted JWT
// expires after 10 minutes, which is why the relay re-fetches.
type AuthService struct {
	userRepo *repository.UserRepo
	redis    *redis.Client
	jwt      *middleware.JWTAuth
}

func NewAuthService(userRepo *repository.UserRepo, redisClient *redis.Client, jwtAuth *middleware.JWTAuth) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		redis:    redisClient,
		jwt:      jwtAuth,
	}
}

// Login verifies credentials and establishes a Redis-backed session,
// returning the session id for the cookie.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (string, error) {
	if req.Email == "" || req.Password == "" {
		return "", &ValidationError{Fields: map[string]string{"email": "Email and password are required"}}
	}

	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return "", &UnauthorizedError{Message: "Invalid email or password"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return "", &UnauthorizedError{Message: "Invalid email or password"}
	}

	sessionID, err := randomToken()
	if err != nil {
		return "", err
	}

	if err := s.redis.Set(ctx, "session:"+sessionID, user.ID.String(), sessionTTL).Err(); err != nil {
		return "", err
	}

	return sessionID, nil
}

// MintToken exchanges a valid session for a 10-minute bearer JWT.
func (s *AuthService) MintToken(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", &UnauthorizedError{Message: "No session"}
	}

	userIDStr, err := s.redis.Get(ctx, "session:"+sessionID).Result()
	if err != nil {
		return "", &UnauthorizedError{Message: "Session expired"}
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return "", &UnauthorizedError{Message: "Session expired"}
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", &UnauthorizedError{Message: "Session expired"}
	}

	return s.jwt.GenerateToken(user.ID, user.Email)
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
