package models

import (
	"math"
	"time"
)

// Quiz belongs to exactly one course version.
type Quiz struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	CourseVersionID uint           `gorm:"not null;uniqueIndex" json:"course_version_id"`
	Title           string         `gorm:"size:255;not null;default:'Course Quiz'" json:"title"`
	IsRequired      bool           `gorm:"not null" json:"is_required"`
	Questions       []QuizQuestion `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// QuizQuestion is one ordered prompt of a quiz.
type QuizQuestion struct {
	ID       uint         `gorm:"primaryKey" json:"id"`
	QuizID   uint         `gorm:"not null;index" json:"quiz_id"`
	Prompt   string       `gorm:"type:text;not null" json:"prompt"`
	Position int          `gorm:"not null;default:1" json:"position"`
	Choices  []QuizChoice `gorm:"foreignKey:QuestionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"choices"`
}

// QuizChoice is an answer option. By convention exactly one per question is correct.
type QuizChoice struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	QuestionID uint   `gorm:"not null;index" json:"question_id"`
	Text       string `gorm:"size:512;not null" json:"text"`
	IsCorrect  bool   `gorm:"not null;default:false" json:"is_correct"`
}

// QuizAttempt records one submission of a quiz against an assignment.
type QuizAttempt struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	UserID       uint         `gorm:"not null;index" json:"user_id"`
	QuizID       uint         `gorm:"not null;index" json:"quiz_id"`
	AssignmentID uint         `gorm:"not null;index" json:"assignment_id"`
	StartedAt    time.Time    `json:"started_at"`
	SubmittedAt  time.Time    `gorm:"not null;index" json:"submitted_at"`
	Score        int          `gorm:"not null" json:"score"`
	Passed       bool         `gorm:"not null;default:false" json:"passed"`
	IPAddress    string       `gorm:"size:45" json:"ip_address"`
	Answers      []QuizAnswer `gorm:"foreignKey:AttemptID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"answers"`
}

// QuizAnswer is the choice picked for one question within an attempt.
type QuizAnswer struct {
	ID         uint  `gorm:"primaryKey" json:"id"`
	AttemptID  uint  `gorm:"not null;uniqueIndex:idx_quiz_answer_attempt_question" json:"attempt_id"`
	QuestionID uint  `gorm:"not null;uniqueIndex:idx_quiz_answer_attempt_question" json:"question_id"`
	ChoiceID   *uint `json:"choice_id"`
	IsCorrect  bool  `gorm:"not null;default:false" json:"is_correct"`
}

// QuizScore converts a correct count into a 0-100 percentage, rounded half up.
func QuizScore(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) * 100 / float64(total)))
}
