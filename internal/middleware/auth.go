package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jamsession/api/internal/auth"
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/pkg/response"
)

type AuthMiddleware struct {
	tokens *auth.TokenIssuer
}

func NewAuthMiddleware(tokens *auth.TokenIssuer) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate validates JWT token from Authorization header. Websocket
// upgrades may pass it as the token query parameter instead.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Query("token")

		if authHeader := c.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return response.Unauthorized(c, "Invalid authorization header format")
			}
			tokenString = parts[1]
		}

		if tokenString == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		claims, err := m.tokens.Validate(tokenString)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		// Store user info in context
		c.Locals("userId", claims.UserID)
		c.Locals("userName", claims.Username)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) int64 {
	if userID, ok := c.Locals("userId").(int64); ok {
		return userID
	}
	return 0
}

// GetActor returns the authenticated caller
func GetActor(c *fiber.Ctx) model.Actor {
	username, _ := c.Locals("userName").(string)
	return model.Actor{ID: GetUserID(c), Username: username}
}
