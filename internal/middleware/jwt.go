package middleware // middleware holds the HTTP middleware shared by all routes

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// MaxSubjectLen is the longest subject accepted, in characters.  It
// matches bookings.requester.
const MaxSubjectLen = 100

// JWTAuth returns an Echo middleware that validates an HS256 Bearer token
// and stores the subject and role claims in the request context.  The
// subject becomes the booking requester.  Tokens are issued elsewhere;
// this service only verifies them with the shared secret.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			sub := subjectOf(claims)
			if sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token has no subject"})
			}
			if utf8.RuneCountInString(sub) > MaxSubjectLen {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token subject too long"})
			}

			c.Set(ctxRequester, sub)
			if role, ok := claims["role"].(string); ok {
				c.Set(ctxRole, role)
			}
			return next(c)
		}
	}
}

// subjectOf returns the sub claim as a string.  Numeric subjects decode
// as float64 from JSON and are formatted without a fraction.
func subjectOf(claims jwt.MapClaims) string {
	switch v := claims["sub"].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
