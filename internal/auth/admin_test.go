package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestAdminGatePlaintextPassword(t *testing.T) {
	g, err := NewAdminGate("letmein", "", "secret", time.Hour)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	if !g.CheckPassword("letmein") {
		t.Error("expected correct password to match")
	}
	if g.CheckPassword("wrong") {
		t.Error("expected wrong password to fail")
	}
	if g.CheckPassword("") {
		t.Error("expected empty password to fail")
	}
}

func TestAdminGateHashedPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	g, err := NewAdminGate("ignored", string(hash), "secret", time.Hour)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	if !g.CheckPassword("hunter2") {
		t.Error("expected hashed password to match")
	}
	if g.CheckPassword("ignored") {
		t.Error("plaintext should be ignored when a hash is set")
	}
}

func TestNewAdminGateErrors(t *testing.T) {
	if _, err := NewAdminGate("", "", "secret", time.Hour); err == nil {
		t.Error("expected error without password")
	}
	if _, err := NewAdminGate("pw", "", "", time.Hour); err == nil {
		t.Error("expected error without secret")
	}
	if _, err := NewAdminGate("", "not-a-bcrypt-hash", "secret", time.Hour); err == nil {
		t.Error("expected error for malformed hash")
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	g, _ := NewAdminGate("pw", "", "secret", time.Hour)

	tok, err := g.IssueToken()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := g.ValidateToken(tok); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestAdminTokenWrongSecret(t *testing.T) {
	g1, _ := NewAdminGate("pw", "", "secret-one", time.Hour)
	g2, _ := NewAdminGate("pw", "", "secret-two", time.Hour)

	tok, _ := g1.IssueToken()
	if err := g2.ValidateToken(tok); !errors.Is(err, ErrInvalidAdminToken) {
		t.Errorf("err = %v, want ErrInvalidAdminToken", err)
	}
}

func TestAdminTokenExpired(t *testing.T) {
	g, _ := NewAdminGate("pw", "", "secret", -time.Minute)

	tok, _ := g.IssueToken()
	if err := g.ValidateToken(tok); !errors.Is(err, ErrInvalidAdminToken) {
		t.Errorf("err = %v, want ErrInvalidAdminToken", err)
	}
}

func TestAdminTokenWrongRole(t *testing.T) {
	g, _ := NewAdminGate("pw", "", "secret", time.Hour)

	claims := AdminClaims{
		Role: "member",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := g.ValidateToken(tok); !errors.Is(err, ErrInvalidAdminToken) {
		t.Errorf("err = %v, want ErrInvalidAdminToken", err)
	}
}

func TestAdminTokenEmpty(t *testing.T) {
	g, _ := NewAdminGate("pw", "", "secret", time.Hour)
	if err := g.ValidateToken(""); !errors.Is(err, ErrInvalidAdminToken) {
		t.Errorf("err = %v, want ErrInvalidAdminToken", err)
	}
}
