package models

import "time"

// UserRole mirrors the user_role ENUM in the database.
type UserRole string

const (
	RolePlayer    UserRole = "player"
	RoleClubAdmin UserRole = "club_admin"
	RoleAppAdmin  UserRole = "app_admin"
)

// User is a club member account. This engine only needs identity, role and
// display fields; everything else about profiles lives outside the core.
type User struct {
	ID           int       `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	AvatarKey    *string   `json:"-" db:"avatar_key"`
	Role         UserRole  `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
