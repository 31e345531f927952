package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const adminRole = "admin"

var ErrInvalidAdminToken = errors.New("invalid admin token")

// AdminClaims are carried by the admin cookie.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminGate checks the shared admin password and issues short-lived signed
// tokens that every privileged request must present.
type AdminGate struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
}

// NewAdminGate accepts either a bcrypt hash or a plaintext password. A hash
// wins when both are set.
func NewAdminGate(password, passwordHash, secret string, ttl time.Duration) (*AdminGate, error) {
	if secret == "" {
		return nil, fmt.Errorf("admin token secret is required")
	}

	var hash []byte
	switch {
	case passwordHash != "":
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, fmt.Errorf("parse admin password hash: %w", err)
		}
		hash = []byte(passwordHash)
	case password != "":
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		hash = h
	default:
		return nil, fmt.Errorf("admin password is required")
	}

	return &AdminGate{passwordHash: hash, secret: []byte(secret), ttl: ttl}, nil
}

// CheckPassword reports whether password matches the configured one.
func (g *AdminGate) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(g.passwordHash, []byte(password)) == nil
}

// TTL is the lifetime of issued tokens.
func (g *AdminGate) TTL() time.Duration {
	return g.ttl
}

// IssueToken signs a new admin token.
func (g *AdminGate) IssueToken() (string, error) {
	jti := make([]byte, 16)
	if _, err := rand.Read(jti); err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	now := time.Now()
	claims := AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        hex.EncodeToString(jti),
			Subject:   adminRole,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, expiry and role.
func (g *AdminGate) ValidateToken(tokenStr string) error {
	if tokenStr == "" {
		return ErrInvalidAdminToken
	}
	token, err := jwt.ParseWithClaims(tokenStr, &AdminClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAdminToken, err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid || claims.Role != adminRole {
		return ErrInvalidAdminToken
	}
	return nil
}
