package middleware

import (
	"log"
	"strings"

	"dojo/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(userService *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		claims, err := userService.ValidateToken(tokenString)
		if err != nil {
			log.Printf("JWT validation failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
				"error":   err.Error(),
			})
		}

		// jwt.MapClaims stores numbers as float64 after parsing.
		userID, ok := claims["user_id"].(float64)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid token claims",
			})
		}

		// Store claims in Fiber context for subsequent handlers
		c.Locals("user_id", uint(userID))
		c.Locals("email", claims["email"])

		// Continue to the next handler
		return c.Next()
	}
}

// GuestOnly rejects callers that already present a valid session token. It
// gates endpoints reserved for unauthenticated users, such as sign-up.
func GuestOnly(userService *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			// No usable token, the caller is a guest.
			return c.Next()
		}
		if _, err := userService.ValidateToken(tokenString); err == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Already authenticated",
			})
		}
		return c.Next()
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header; ok is false when the header is absent or malformed.
func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if !(len(parts) == 2 && parts[0] == "Bearer") {
		return "", false
	}
	return parts[1], true
}
