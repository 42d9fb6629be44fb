package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"backend-runtracker/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// sessions can run for hours, so tokens outlive a long run
const accessTokenTTL = 12 * time.Hour

var (
	ErrMissingFields      = errors.New("email, display_name and password required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrUnavailable        = errors.New("runner store unavailable")
)

var (
	hashPasswordFn = bcrypt.GenerateFromPassword
	signTokenFn    = (*Service).signToken
)

type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	RunnerID string `json:"runner_id"`
	jwt.RegisteredClaims
}

func NewService(secret string, db db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Runner, TokenResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.DisplayName == "" || req.Password == "" {
		return Runner{}, TokenResponse{}, ErrMissingFields
	}
	if s.db == nil {
		return Runner{}, TokenResponse{}, ErrUnavailable
	}
	hash, err := hashPasswordFn([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Runner{}, TokenResponse{}, err
	}

	runner := Runner{
		ID:           uuid.NewString(),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO runners (id, email, display_name, password_hash)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, runner.ID, runner.Email, runner.DisplayName, runner.PasswordHash)
	if err := row.Scan(&runner.CreatedAt); err != nil {
		return Runner{}, TokenResponse{}, err
	}

	tokens, err := s.IssueToken(runner.ID)
	if err != nil {
		return Runner{}, TokenResponse{}, err
	}
	return runner, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (Runner, TokenResponse, error) {
	if s.db == nil {
		return Runner{}, TokenResponse{}, ErrUnavailable
	}
	row := s.db.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM runners WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(req.Email)))

	var runner Runner
	if err := row.Scan(&runner.ID, &runner.Email, &runner.DisplayName, &runner.PasswordHash, &runner.CreatedAt); err != nil {
		return Runner{}, TokenResponse{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(runner.PasswordHash), []byte(req.Password)); err != nil {
		return Runner{}, TokenResponse{}, ErrInvalidCredentials
	}

	tokens, err := s.IssueToken(runner.ID)
	if err != nil {
		return Runner{}, TokenResponse{}, err
	}
	return runner, tokens, nil
}

func (s *Service) IssueToken(runnerID string) (TokenResponse, error) {
	access, err := signTokenFn(s, runnerID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateToken(token string) (string, error) {
	claims, err := parseClaims(token, s.secret)
	if err != nil {
		return "", err
	}
	return claims.RunnerID, nil
}

func (s *Service) signToken(runnerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RunnerID: runnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   runnerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func parseClaims(token string, secret []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.RunnerID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
