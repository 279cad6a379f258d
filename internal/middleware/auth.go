package middleware

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleDriver = "driver"
	RoleRider  = "rider"

	localActorID = "actorID"
	localRole    = "role"
)

// Claims token de conductor o pasajero; Subject lleva el id del actor
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken firma un token HS256. Solo lo usa el CLI de desarrollo.
func IssueToken(secret []byte, role string, actorID int64, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actorID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	return signed, expires, err
}

func parseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearer(c *fiber.Ctx) (string, bool) {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		// los navegadores no pueden mandar headers en el upgrade websocket
		if strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket") {
			tok := c.Query("access_token")
			return tok, tok != ""
		}
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

// RequireRole valida el bearer token y exige uno de los roles indicados.
// Deja el id del actor en Locals para los handlers.
func RequireRole(secret []byte, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, ok := bearer(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing bearer token",
				"kind":  "unauthenticated",
			})
		}
		claims, err := parseToken(secret, raw)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": msg,
				"kind":  "unauthenticated",
			})
		}
		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || id <= 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid subject",
				"kind":  "unauthenticated",
			})
		}
		if !slices.Contains(roles, claims.Role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "role " + strings.Join(roles, "|") + " required",
				"kind":  "forbidden",
			})
		}
		c.Locals(localActorID, id)
		c.Locals(localRole, claims.Role)
		return c.Next()
	}
}

// Role rol del actor autenticado
func Role(c *fiber.Ctx) string {
	role, _ := c.Locals(localRole).(string)
	return role
}

// ActorID id del conductor/pasajero autenticado, 0 si no hay
func ActorID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(localActorID).(int64)
	return id
}
