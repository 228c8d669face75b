package accounts

// RoleName is a canonical role name
type RoleName = string

const (
	// RoleVisitor can view shared resources
	RoleVisitor RoleName = "Visitor"
	// RoleMember can view and edit account resources
	RoleMember RoleName = "Member"
	// RoleOwner administers resources they created
	RoleOwner RoleName = "Owner"
	// RoleAdministrator administers the whole account
	RoleAdministrator RoleName = "Administrator"
)

// AccountTypeFree is the default tier new installs seed.
const AccountTypeFree = "Free"

// IsValidRole checks if the name is one of the predefined roles
func IsValidRole(name string) bool {
	switch name {
	case RoleVisitor, RoleMember, RoleOwner, RoleAdministrator:
		return true
	default:
		return false
	}
}

// RoleAtLeast checks if role meets the minimum required level. Unknown role
// names never satisfy any minimum.
func RoleAtLeast(role, minRole string) bool {
	currentLevel, ok := roleRank(role)
	if !ok {
		return false
	}

	minLevel, ok := roleRank(minRole)
	if !ok {
		return false
	}

	return currentLevel >= minLevel
}

// AllRoles returns the predefined roles in hierarchical order
func AllRoles() []RoleName {
	return []RoleName{
		RoleVisitor,
		RoleMember,
		RoleOwner,
		RoleAdministrator,
	}
}

func roleRank(name string) (int, bool) {
	switch name {
	case RoleVisitor:
		return 0, true
	case RoleMember:
		return 1, true
	case RoleOwner:
		return 2, true
	case RoleAdministrator:
		return 3, true
	default:
		return 0, false
	}
}
