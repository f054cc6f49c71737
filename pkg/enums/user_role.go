package enums

import "fmt"

// UserRole is the role claim carried by access tokens.
type UserRole string

const (
	UserRoleStudent    UserRole = "aluno"
	UserRoleInstructor UserRole = "instrutor"
	UserRoleAdmin      UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleStudent,
	UserRoleInstructor,
	UserRoleAdmin,
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
