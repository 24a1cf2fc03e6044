// internal/models/notification.go
package models

type Notification struct {
	ID            string                 `json:"id"`
	TenantID      string                 `json:"tenantId"`
	RecipientID   string                 `json:"recipientId"`
	RecipientType string                 `json:"recipientType"` // "counselor", "student"
	Type          string                 `json:"type"`          // "application_submitted"
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	Payload       map[string]interface{} `json:"payload"`
	CreatedAt     string                 `json:"createdAt"`
}

// Counselor is the assigned counselor resolved for a student, used only to
// address the post-submission notification.
type Counselor struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}
