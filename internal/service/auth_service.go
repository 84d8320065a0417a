package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenInvalid       = errors.New("token is invalid or expired")
)

type AuthService struct {
	secret    []byte
	ttl       time.Duration
	operators map[string]config.Operator
	log       zerolog.Logger
	now       func() time.Time
}

func NewAuthService(cfg config.AuthConfig, log zerolog.Logger) *AuthService {
	ops := make(map[string]config.Operator, len(cfg.Operators))
	for _, op := range cfg.Operators {
		ops[op.Username] = op
	}
	return &AuthService{
		secret:    []byte(cfg.JWTSecret),
		ttl:       cfg.TokenTTL,
		operators: ops,
		log:       log,
		now:       time.Now,
	}
}

// Enabled reports whether operator endpoints require a token.
func (s *AuthService) Enabled() bool {
	return len(s.secret) > 0
}

type LoginResult struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *AuthService) Login(username, password string) (*LoginResult, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("%w: authentication is disabled", ErrServiceUnavailable)
	}

	op, ok := s.operators[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		s.log.Debug().Str("username", username).Msg("password mismatch")
		return nil, ErrInvalidCredentials
	}

	role := op.Role
	if role == "" {
		role = "operator"
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub":      op.Username,
		"exp":      expiresAt.Unix(),
		"iat":      now.Unix(),
		"role":     role,
		"username": op.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.log.Info().Str("username", op.Username).Str("role", role).Msg("operator logged in")
	return &LoginResult{
		Token:     signed,
		Username:  op.Username,
		Role:      role,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// ValidateToken parses an HS256 token and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: malformed token", ErrTokenInvalid)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: token expired", ErrTokenInvalid)
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, fmt.Errorf("%w: token not valid yet", ErrTokenInvalid)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
