package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a staff role as stored and carried in tokens.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
	RoleEditor     Role = "editor"
	RoleCitizen    Role = "citizen"
)

// User is a platform account (staff or citizen).
type User struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	Password   string     `json:"-"`
	FullName   string     `json:"full_name"`
	Role       Role       `json:"role"`
	HomeCityID *uuid.UUID `json:"home_city_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	FullName   string     `json:"full_name"`
	Role       Role       `json:"role"`
	HomeCityID *uuid.UUID `json:"home_city_id,omitempty"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		Role:       u.Role,
		HomeCityID: u.HomeCityID,
	}
}
