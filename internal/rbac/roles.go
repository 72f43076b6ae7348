package rbac

// Operator role names. Keep these stable; they are embedded in issued tokens.
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
	RoleFinance = "finance"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// ValidRole reports whether role may be put into an operator token.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleAnalyst, RoleFinance:
		return true
	}
	return false
}
