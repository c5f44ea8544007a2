package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrAuditEventImmutable is returned when code attempts to modify a stored audit event.
var ErrAuditEventImmutable = errors.New("audit events are append-only")

// Audit actions recorded by the compliance core.
const (
	AuditActionAssigned               = "ASSIGNED"
	AuditActionProgressStarted        = "VIDEO_PROGRESS_STARTED"
	AuditActionAssignmentStarted      = "ASSIGNMENT_STARTED"
	AuditActionQuizSubmitted          = "QUIZ_SUBMITTED"
	AuditActionCourseCompleted        = "COURSE_COMPLETED"
	AuditActionCertificateDownloaded  = "CERTIFICATE_DOWNLOADED"
	AuditActionAuditExported          = "AUDIT_EXPORTED"
	AuditActionRuleRun                = "RULE_RUN"
	AuditActionCourseCreated          = "COURSE_CREATED"
	AuditActionCourseVersionCreated   = "COURSE_VERSION_CREATED"
	AuditActionCourseVersionPublished = "COURSE_VERSION_PUBLISHED"
	AuditActionCourseVersionRetired   = "COURSE_VERSION_RETIRED"
	AuditActionCourseVersionDeleted   = "COURSE_VERSION_DELETED"
	AuditActionAssetUploaded          = "ASSET_UPLOADED"
	AuditActionQuizDefined            = "QUIZ_DEFINED"
	AuditActionRuleCreated            = "RULE_CREATED"
	AuditActionRuleUpdated            = "RULE_UPDATED"
	AuditActionReminderSent           = "REMINDER_SENT"
)

// AuditEvent is an append-only log entry. ActorID carries no foreign key so entries
// survive actor deletion.
type AuditEvent struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    *uint             `gorm:"index" json:"actor_id"`
	Action     string            `gorm:"size:100;not null;index" json:"action"`
	ObjectType string            `gorm:"size:100;index:idx_audit_event_object" json:"object_type"`
	ObjectID   string            `gorm:"size:100;index:idx_audit_event_object" json:"object_id"`
	Details    datatypes.JSONMap `gorm:"type:json" json:"details"`
	IPAddress  string            `gorm:"size:45" json:"ip_address"`
	CreatedAt  time.Time         `gorm:"index" json:"created_at"`
}

// BeforeUpdate rejects modifications.
func (e *AuditEvent) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditEventImmutable
}

// BeforeDelete rejects deletions.
func (e *AuditEvent) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditEventImmutable
}
