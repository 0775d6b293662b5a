package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateAccessToken(42, "kim@example.com", "Kim")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.UserID != 42 || claims.Nickname != "Kim" || claims.Subject != "42" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	expired := NewJWTManager("secret", -time.Minute)
	other := NewJWTManager("other", time.Hour)

	expiredToken, _ := expired.GenerateAccessToken(1, "", "")
	foreignToken, _ := other.GenerateAccessToken(1, "", "")
	hs384Token, _ := jwt.NewWithClaims(jwt.SigningMethodHS384, Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	otherIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expiredToken, ErrExpiredToken},
		{"wrong key", foreignToken, ErrInvalidToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"other algorithm", hs384Token, ErrInvalidToken},
		{"other issuer", otherIssuer, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.ValidateAccessToken(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("ValidateAccessToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, _ := m.GenerateAccessToken(7, "", "Lee")

	app := fiber.New()
	app.Get("/me", AuthMiddleware(m), func(c *fiber.Ctx) error {
		id, _ := UserID(c)
		return c.JSON(fiber.Map{"id": id, "nickname": Nickname(c)})
	})

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"bearer header", "/me", "Bearer " + token, fiber.StatusOK},
		{"query param", "/me?token=" + token, "", fiber.StatusOK},
		{"bad header", "/me", "Token " + token, fiber.StatusUnauthorized},
		{"missing", "/me", "", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
