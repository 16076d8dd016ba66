package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestVerify(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, testSecret, jwt.SigningMethodHS256, &AffiliateClaims{
		Email: "aff@example.com",
		Name:  "Affiliate One",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "aff-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.AffiliateID() != "aff-1" {
		t.Errorf("AffiliateID() = %s, want aff-1", claims.AffiliateID())
	}
	if claims.Email != "aff@example.com" {
		t.Errorf("Email = %s, want aff@example.com", claims.Email)
	}
	if claims.Admin {
		t.Error("Admin = true, want false")
	}
}

func TestVerifyAdminClaim(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, testSecret, jwt.SigningMethodHS256, &AffiliateClaims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !claims.Admin {
		t.Error("Admin = false, want true")
	}
}

func TestVerifyExpired(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, testSecret, jwt.SigningMethodHS256, &AffiliateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "aff-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	if _, err := v.Verify(token); err != ErrExpiredToken {
		t.Fatalf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, "other-secret", jwt.SigningMethodHS256, &AffiliateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "aff-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyMissingSubject(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, testSecret, jwt.SigningMethodHS256, &AffiliateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	v := NewVerifier(testSecret)

	for _, tokenString := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := v.Verify(tokenString); err != ErrInvalidToken {
			t.Errorf("Verify(%q) error = %v, want ErrInvalidToken", tokenString, err)
		}
	}
}
