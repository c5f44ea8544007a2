package service

import (
	"errors"
	"fmt"
)

var (
	// ErrAssignmentNotFound indicates the assignment does not exist or is not visible to the caller.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrCourseNotFound indicates the course does not exist.
	ErrCourseNotFound = errors.New("course not found")
	// ErrCourseVersionNotFound indicates the version does not exist or is not visible to the caller.
	ErrCourseVersionNotFound = errors.New("course version not found")
	// ErrQuizNotFound indicates the course version has no quiz.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrCertificateNotFound indicates the certificate does not exist or is not visible to the caller.
	ErrCertificateNotFound = errors.New("certificate not found")
	// ErrRuleNotFound indicates the assignment rule does not exist.
	ErrRuleNotFound = errors.New("assignment rule not found")
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidAnswers indicates a quiz submission references unknown questions or choices,
	// or leaves questions unanswered.
	ErrInvalidAnswers = errors.New("quiz answers do not match the quiz")
	// ErrInvalidStatusFilter indicates an unknown compliance status filter.
	ErrInvalidStatusFilter = errors.New("unknown compliance status")
	// ErrAlreadyCompliant indicates completion was requested while the current cycle is still compliant.
	ErrAlreadyCompliant = errors.New("assignment already completed for the current cycle")
	// ErrCertificateIDExhausted indicates certificate id generation kept colliding.
	ErrCertificateIDExhausted = errors.New("could not allocate a unique certificate id")

	// ErrCourseExists indicates the course code is already taken.
	ErrCourseExists = errors.New("course code already exists")
	// ErrVersionExists indicates the version label is already used within the course.
	ErrVersionExists = errors.New("version already exists for course")
	// ErrVersionPublished indicates an attempt to change content of a published version.
	ErrVersionPublished = errors.New("published course versions are immutable")
	// ErrVersionNotPublished indicates an operation that needs a published version.
	ErrVersionNotPublished = errors.New("course version is not published")
	// ErrVersionRetired indicates the version has been retired.
	ErrVersionRetired = errors.New("course version is retired")
	// ErrInvalidQuizDefinition indicates a question without exactly one correct choice.
	ErrInvalidQuizDefinition = errors.New("each question needs exactly one correct choice")
	// ErrVersionInUse indicates deletion of a version still referenced by assignments.
	ErrVersionInUse = errors.New("course version is referenced by assignments")
	// ErrAssetTypeNotAllowed indicates an uploaded asset is neither a video nor a document.
	ErrAssetTypeNotAllowed = errors.New("asset type not allowed")
	// ErrAssetTooLarge indicates the uploaded asset exceeds the size limit.
	ErrAssetTooLarge = errors.New("asset exceeds maximum allowed size")
	// ErrStorageUnavailable indicates no asset storage is configured.
	ErrStorageUnavailable = errors.New("asset storage is not configured")
)

// Remediation names the step a learner must take before completion can succeed.
type Remediation string

const (
	RemediationWatchVideo Remediation = "watch_video"
	RemediationRetakeQuiz Remediation = "retake_quiz"
)

// PreconditionError is returned when completion gates are not met. It is recoverable:
// the learner is sent back to the remediation step.
type PreconditionError struct {
	Remediation Remediation
	Required    int
	Actual      int
}

func (e *PreconditionError) Error() string {
	switch e.Remediation {
	case RemediationWatchVideo:
		return fmt.Sprintf("video progress %d%% is below the required %d%%", e.Actual, e.Required)
	case RemediationRetakeQuiz:
		return "a passing quiz attempt is required for this cycle"
	default:
		return "completion preconditions not met"
	}
}

// IsPrecondition extracts a PreconditionError from err.
func IsPrecondition(err error) (*PreconditionError, bool) {
	var precondition *PreconditionError
	if errors.As(err, &precondition) {
		return precondition, true
	}
	return nil, false
}
