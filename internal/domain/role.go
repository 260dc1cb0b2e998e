package domain

// Role is the caller-supplied tag a client presents when it connects.
// It is not verified; it only decides group membership inside the relay.
type Role string

const (
	RoleNone      Role = ""
	RoleSubmitter Role = "submitter"
	RoleReviewer  Role = "reviewer"
	RoleAdmin     Role = "admin"
)

// IsReviewer reports whether the role places a connection in the reviewer subset.
func (r Role) IsReviewer() bool {
	return r == RoleReviewer
}

// Label returns a non-empty name for logs and metric labels.
func (r Role) Label() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}
