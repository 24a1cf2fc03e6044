// internal/models/identity.go
package models

// Identity is the resolved acting user, passed explicitly into every workflow
// component. It is read-only context; components never mutate it.
type Identity struct {
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
	Role     string `json:"role"` // "student", "agent", "counselor"
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// HasStudent reports whether a backend-keyed draft write is possible.
func (i Identity) HasStudent() bool {
	return i.UserID != ""
}
