package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
	ctxRequester = "requester"
	ctxRole      = "role"
)

// Roles carried in the token's role claim.
const (
	RoleCustomer = "CUSTOMER"
	RoleOperator = "OPERATOR"
)

// Requester returns the authenticated subject, or "" for anonymous
// requests.
func Requester(c echo.Context) string {
	if v, ok := c.Get(ctxRequester).(string); ok {
		return v
	}
	return ""
}

// Role returns the authenticated role claim, or "".
func Role(c echo.Context) string {
	if v, ok := c.Get(ctxRole).(string); ok {
		return v
	}
	return ""
}

// IsOperator reports whether the caller holds the operator role.
func IsOperator(c echo.Context) bool { return Role(c) == RoleOperator }

// rateKeyIdentity identifies the caller for rate limiting: the requester
// when authenticated, the client IP otherwise.
func rateKeyIdentity(c echo.Context) string {
	if r := Requester(c); r != "" {
		return "user:" + r
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
