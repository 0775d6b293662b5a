package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var errMissingToken = errors.New("missing authorization token")

// TokenFromRequest returns the access token of a request. It is read from
// the Authorization header, then the access_token cookie, then the token
// query parameter, which browsers need for WebSocket upgrades.
func TokenFromRequest(c *fiber.Ctx) (string, error) {
	if header := c.Get("Authorization"); header != "" {
		// Bearer 토큰 파싱
		parts := strings.Split(header, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return "", errors.New("invalid authorization header format")
		}
		return parts[1], nil
	}
	if cookie := c.Cookies("access_token"); cookie != "" {
		return cookie, nil
	}
	if query := c.Query("token"); query != "" {
		return query, nil
	}
	return "", errMissingToken
}

// AuthMiddleware JWT 인증 미들웨어
func AuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := TokenFromRequest(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		// 토큰 검증
		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		// 사용자 정보를 컨텍스트에 저장
		c.Locals("userID", claims.UserID)
		c.Locals("email", claims.Email)
		c.Locals("nickname", claims.Nickname)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// UserID returns the authenticated user id stored by AuthMiddleware.
func UserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals("userID").(int64)
	return id, ok
}

// Nickname returns the authenticated nickname stored by AuthMiddleware.
func Nickname(c *fiber.Ctx) string {
	name, _ := c.Locals("nickname").(string)
	return name
}
