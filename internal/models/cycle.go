package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/compliance"
)

// CertificateIDLength is the number of hex characters in a certificate id.
const CertificateIDLength = 10

// AssignmentCycle is one compliance period of an assignment. An open cycle has no
// CompletedAt; a completed one carries its own expiry and certificate.
type AssignmentCycle struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	AssignmentID     uint        `gorm:"not null;index" json:"assignment_id"`
	Assignment       *Assignment `gorm:"foreignKey:AssignmentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment,omitempty"`
	CompletedAt      *time.Time  `gorm:"index" json:"completed_at"`
	ExpiresAt        *time.Time  `gorm:"index" json:"expires_at"`
	Score            *int        `json:"score"`
	Passed           bool        `gorm:"not null;default:false" json:"passed"`
	CertificateID    string      `gorm:"<-:create;size:32;uniqueIndex;not null" json:"certificate_id"`
	Reminder30SentAt *time.Time  `gorm:"column:reminder_30_sent_at" json:"reminder_30_sent_at"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// NewCertificateID returns a fresh opaque certificate token. Uniqueness is enforced
// by the unique index; callers retry on collision.
func NewCertificateID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:CertificateIDLength])
}

// BeforeSave fills the default expiry for completed cycles. An existing expiry is
// never touched.
func (c *AssignmentCycle) BeforeSave(tx *gorm.DB) error {
	c.ApplyDefaultExpiry(compliance.DefaultRenewalMonths)
	return nil
}

// BeforeCreate assigns the certificate id on first save.
func (c *AssignmentCycle) BeforeCreate(tx *gorm.DB) error {
	if strings.TrimSpace(c.CertificateID) == "" {
		c.CertificateID = NewCertificateID()
	}
	return nil
}

// ApplyDefaultExpiry sets ExpiresAt from CompletedAt when it is still unset.
func (c *AssignmentCycle) ApplyDefaultExpiry(months int) {
	if c.CompletedAt == nil || c.ExpiresAt != nil {
		return
	}
	expires := compliance.RenewalExpiry(*c.CompletedAt, months)
	c.ExpiresAt = &expires
}

// IsCompleted reports whether the cycle has been completed.
func (c AssignmentCycle) IsCompleted() bool {
	return c.CompletedAt != nil
}

// Status derives the compliance label of the cycle at now.
func (c AssignmentCycle) Status(now time.Time) compliance.Status {
	return compliance.StatusAt(now, c.CompletedAt, c.ExpiresAt)
}
