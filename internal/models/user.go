package models

import (
	"strings"
	"time"
)

// User is the identity record the compliance core consumes: flags for audit access and
// the manager link used to scope report visibility.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Username      string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email         string    `gorm:"size:255;index" json:"email"`
	FirstName     string    `gorm:"size:150" json:"first_name"`
	LastName      string    `gorm:"size:150" json:"last_name"`
	Department    string    `gorm:"size:100;index" json:"department"`
	IsActive      bool      `gorm:"not null" json:"is_active"`
	IsStaff       bool      `gorm:"not null;default:false" json:"is_staff"`
	IsSuperuser   bool      `gorm:"not null;default:false" json:"is_superuser"`
	CanAuditCerts bool      `gorm:"not null;default:false" json:"can_audit_certs"`
	ManagerID     *uint     `gorm:"index" json:"manager_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// DisplayName prefers the full name, then e-mail, then username.
func (u User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	if email := strings.TrimSpace(u.Email); email != "" {
		return email
	}
	return u.Username
}

// CanAuditAll reports whether the user may see every learner's records.
func (u User) CanAuditAll() bool {
	return u.IsStaff || u.IsSuperuser || u.CanAuditCerts
}

// EmailDomain returns the lower-cased domain of the user's e-mail, if any.
func (u User) EmailDomain() string {
	email := strings.TrimSpace(u.Email)
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
