package models

import (
	"fmt"
	"strings"
	"time"
)

// UserRole gates which route groups an account may reach.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleStudent    UserRole = "STUDENT"
)

// ParseRole normalises a role name. An empty name means student.
func ParseRole(name string) (UserRole, error) {
	role := UserRole(strings.ToUpper(strings.TrimSpace(name)))
	switch role {
	case "":
		return RoleStudent, nil
	case RoleAdmin, RoleInstructor, RoleStudent:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q", name)
	}
}

// User is an account row. Email is stored lower-cased.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayName falls back to the mailbox name when no full name is set.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}
