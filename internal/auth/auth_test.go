package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestOperatorTokens(t *testing.T) {
	tokens := NewOperatorTokens("test-secret", "lendguard", time.Hour)

	t.Run("IssueAndVerify", func(t *testing.T) {
		tok, err := tokens.Issue("alice")
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		op, err := tokens.Verify(tok)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if op != "alice" {
			t.Errorf("expected operator 'alice', got '%s'", op)
		}
	})

	t.Run("EmptyOperatorRejected", func(t *testing.T) {
		if _, err := tokens.Issue("   "); err == nil {
			t.Error("expected error for blank operator")
		}
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := NewOperatorTokens("other-secret", "lendguard", time.Hour)
		tok, _ := other.Issue("alice")
		if _, err := tokens.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		other := NewOperatorTokens("test-secret", "someone-else", time.Hour)
		tok, _ := other.Issue("alice")
		if _, err := tokens.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		past := NewOperatorTokens("test-secret", "lendguard", time.Minute)
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		tok, _ := past.Issue("alice")
		if _, err := tokens.Verify(tok); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("NoneAlgorithmRejected", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Operator: "mallory"})
		s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("sign none: %v", err)
		}
		if _, err := tokens.Verify(s); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		if _, err := tokens.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestOperatorTokensDisabled(t *testing.T) {
	tokens := NewOperatorTokens("", "lendguard", 0)
	if tokens.Enabled() {
		t.Fatal("expected disabled service without secret")
	}
	if _, err := tokens.Issue("alice"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
	if _, err := tokens.Verify("x"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}
