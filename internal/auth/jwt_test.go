package auth_test

import (
	"testing"

	"github.com/almacen-erp/api/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret"

func TestGenerateAndValidateToken(t *testing.T) {
	userID := uuid.New()

	tokenStr, err := auth.GenerateToken(testSecret, userID, "user@almacen.local", "admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := auth.ValidateToken(testSecret, tokenStr)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != userID {
		t.Errorf("user_id: got %v, want %v", claims.UserID, userID)
	}
	if claims.Email != "user@almacen.local" {
		t.Errorf("email: got %v, want user@almacen.local", claims.Email)
	}
	if claims.Role != "admin" {
		t.Errorf("role: got %v, want admin", claims.Role)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	tokenStr, err := auth.GenerateToken(testSecret, uuid.New(), "user@almacen.local", "cashier")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := auth.ValidateToken("other-secret", tokenStr); err == nil {
		t.Error("expected validation to fail with wrong secret")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	if _, err := auth.ValidateToken(testSecret, "not.a.token"); err == nil {
		t.Error("expected validation to fail for garbage input")
	}
}

func TestValidateToken_RejectsUnsignedAlg(t *testing.T) {
	// Token signed with "none" must never validate
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x"})
	tokenStr, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	if _, err := auth.ValidateToken(testSecret, tokenStr); err == nil {
		t.Error("expected validation to reject alg=none token")
	}
}

func TestGenerateRefreshToken_SubjectIsUserID(t *testing.T) {
	userID := uuid.New()

	tokenStr, err := auth.GenerateRefreshToken(testSecret, userID)
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}

	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	if err != nil {
		t.Fatalf("parse refresh token: %v", err)
	}

	claims := token.Claims.(*jwt.RegisteredClaims)
	if claims.Subject != userID.String() {
		t.Errorf("subject: got %v, want %v", claims.Subject, userID)
	}
}
