package middleware

import (
	"strings"
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"
	"scheduler_server/pkg/apperr"
	"scheduler_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const localIdentity = "identity"

// JWTAuth verifies an HS256 bearer token and resolves its subject to a
// stored profile. The resulting identity is the only source of caller
// information for downstream handlers.
func JWTAuth(secret string, profiles out.ProfileRepository) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(time.Minute),
	)

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString := bearerToken(c)
		if tokenString == "" {
			// EventSource clients cannot set headers.
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return apperr.Unauthorized("missing authorization")
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			logger.WithError(err).Warn("JWT validation failed")
			return apperr.InvalidToken("invalid token")
		}

		userID, err := claims.GetSubject()
		if err != nil || userID == "" {
			return apperr.InvalidToken("missing user id in token")
		}

		profile, err := profiles.GetProfile(c.UserContext(), userID)
		if err != nil {
			return apperr.DatabaseError("load profile", err)
		}
		if profile == nil {
			return apperr.Unauthorized("user not found")
		}

		identity := profile.Identity()
		c.Locals(localIdentity, identity)
		c.SetUserContext(logger.ContextWithUserID(c.UserContext(), identity.ID))
		return c.Next()
	}
}

// IdentityFrom returns the identity JWTAuth attached to the request.
func IdentityFrom(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(localIdentity).(domain.Identity)
	return identity, ok
}

func bearerToken(c *fiber.Ctx) string {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
