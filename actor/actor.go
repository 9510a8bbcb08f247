// Package actor carries the identity and role attribution supplied by the
// external auth service on every engine call.
package actor

// Role is the privilege level of the caller.
type Role string

const (
	// RoleStudent can only operate on the current day.
	RoleStudent Role = "student"
	// RoleStaff can consume on custom (past) dates and backdate periods.
	RoleStaff Role = "staff"
	// RoleAdmin can additionally apply signed manual adjustments and
	// manage holidays and account blocks.
	RoleAdmin Role = "admin"
)

// Elevated reports whether the role may use custom consumption dates and
// backdated period starts.
func (r Role) Elevated() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Actor identifies who performed an operation, for ledger attribution.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}
