package auth

import (
	"testing"

	"github.com/google/uuid"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret"
	userID := uuid.New()

	token, err := GenerateToken(secret, userID, "manager")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("user ID = %s, want %s", claims.UserID, userID)
	}
	if claims.Role != "manager" {
		t.Errorf("role = %s, want manager", claims.Role)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("secret-a", uuid.New(), "staff")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := ValidateToken("secret-b", token); err == nil {
		t.Fatal("expected validation error for wrong secret")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	if _, err := ValidateToken("secret", "not-a-token"); err == nil {
		t.Fatal("expected validation error for malformed token")
	}
}
