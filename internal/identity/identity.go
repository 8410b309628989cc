// Package identity normalizes host-supplied caller identity into the
// vocabulary Claude Engine understands.
package identity

// Engine roles understood by Claude Engine.
const (
	RoleAdmin    = "admin"
	RoleBusiness = "business"
)

// Caller is the opaque identity descriptor supplied by the host per call.
// The relay never persists it.
type Caller struct {
	Email string
	Name  string
	Role  string
}

// Resolved is the identity triple attached to every upstream request.
type Resolved struct {
	Email      string
	EngineRole string
	UserID     string
}

// engineRoles maps host role names to engine role names. Every host role
// maps to exactly one engine role; unknown roles fall back to business.
var engineRoles = map[string]string{
	"admin":   RoleAdmin,
	"user":    RoleBusiness,
	"pending": RoleBusiness,
}

func EngineRole(hostRole string) string {
	if role, ok := engineRoles[hostRole]; ok {
		return role
	}
	return RoleBusiness
}

// Resolve produces a usable identity triple for any input, including a nil
// caller. It never fails: a missing identity resolves to anonymous with the
// default host role, and the user id defaults to the email.
func Resolve(c *Caller) Resolved {
	email := "anonymous"
	hostRole := "user"

	if c != nil {
		if c.Email != "" {
			email = c.Email
		}
		if c.Role != "" {
			hostRole = c.Role
		}
	}

	return Resolved{
		Email:      email,
		EngineRole: EngineRole(hostRole),
		UserID:     email,
	}
}
