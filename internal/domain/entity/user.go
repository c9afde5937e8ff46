package entity

import "time"

const (
	RoleAdmin     = "ADMIN"
	RoleApplicant = "APPLICANT"
	RoleLender    = "LENDER"
)

type User struct {
	ID        string    `json:"id" firestore:"id"`
	Name      string    `json:"name" firestore:"name"`
	Email     string    `json:"email" firestore:"email"`
	Role      string    `json:"role" firestore:"role"` // "ADMIN", "APPLICANT", "LENDER"
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

// UserSummary is the minimal profile attached to messages and
// conversation listings.
type UserSummary struct {
	ID    string `json:"id" firestore:"id"`
	Name  string `json:"name" firestore:"name"`
	Email string `json:"email,omitempty" firestore:"email,omitempty"`
	Role  string `json:"role,omitempty" firestore:"role,omitempty"`
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
}
