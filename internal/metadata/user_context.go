package metadata

// Role names understood by the form layer. Roles are issued by the LIMS
// backend; this service only reads them.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleTechnician = "technician"
	RoleViewer     = "viewer"
)

// UserContext represents the authenticated user, set by auth middleware.
type UserContext struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
	Token string   `json:"-"` // raw bearer token, forwarded to the backend
}

// HasRole checks whether the user has a specific role.
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks whether the user has the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// CurrentRole returns the most privileged role the user holds.
func (u *UserContext) CurrentRole() string {
	for _, r := range []string{RoleAdmin, RoleManager, RoleTechnician, RoleViewer} {
		if u.HasRole(r) {
			return r
		}
	}
	return RoleViewer
}

// CanEdit returns false for users that may only view records.
func (u *UserContext) CanEdit() bool {
	return u.CurrentRole() != RoleViewer
}

// IsAuthenticated reports whether the context carries a verified user.
func (u *UserContext) IsAuthenticated() bool {
	return u != nil && u.ID != ""
}
