package auth

// Role is a role tag granted to an account
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// RolesToAuthorities converts role tags into an authority set
func RolesToAuthorities(roles []Role) map[string]struct{} {
	out := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r.IsValid() {
			out[r.String()] = struct{}{}
		}
	}
	return out
}
