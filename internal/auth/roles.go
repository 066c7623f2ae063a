package auth

import "fmt"

type Role string

const (
	RoleOperator Role = "operator"
	RolePlanner  Role = "planner"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOperator, RolePlanner, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type Permission string

const (
	// PermOperate covers reading state and running cycles.
	PermOperate Permission = "operate"
	// PermPlan covers arrangement changes, balancing and orders.
	PermPlan Permission = "plan"
	// PermAdmin covers catalog imports, users and station tokens.
	PermAdmin Permission = "admin"
)

func RolePermissions(role Role) []Permission {
	switch role {
	case RoleAdmin:
		return []Permission{PermOperate, PermPlan, PermAdmin}
	case RolePlanner:
		return []Permission{PermOperate, PermPlan}
	default:
		return []Permission{PermOperate}
	}
}
