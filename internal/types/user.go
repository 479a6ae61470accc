package types

// Role is the backend-assigned privilege level of a user.
type Role string

const (
	RoleUser       Role = "user"
	RoleEditor     Role = "editor"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// User is the authenticated account as reported by the backend.
// The client consumes it (header display, role gating) but never owns it.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// QuotaWindow is one usage counter against its plan limit.
type QuotaWindow struct {
	Current int `json:"current"`
	Limit   int `json:"limit"`
}

// Exhausted reports whether the window has no headroom left.
// A zero or negative limit means "unlimited".
func (q QuotaWindow) Exhausted() bool {
	return q.Limit > 0 && q.Current >= q.Limit
}

// Usage is a point-in-time snapshot of message consumption.
type Usage struct {
	Daily   QuotaWindow `json:"daily"`
	Monthly QuotaWindow `json:"monthly"`
}
