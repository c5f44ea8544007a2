package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store bundles the repositories that take part in multi-step workflows so they can be
// bound to a single transaction.
type Store interface {
	Users() UserRepository
	Courses() CourseRepository
	CourseVersions() CourseVersionRepository
	Assignments() AssignmentRepository
	Cycles() CycleRepository
	Progress() ProgressRepository
	Quizzes() QuizRepository
	Rules() RuleRepository
	AuditEvents() AuditEventRepository
	// Transaction runs fn with a Store bound to one database transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore builds a GORM-backed store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Users() UserRepository { return NewUserRepository(s.db) }
func (s *gormStore) Courses() CourseRepository { return NewCourseRepository(s.db) }
func (s *gormStore) CourseVersions() CourseVersionRepository { return NewCourseVersionRepository(s.db) }
func (s *gormStore) Assignments() AssignmentRepository { return NewAssignmentRepository(s.db) }
func (s *gormStore) Cycles() CycleRepository { return NewCycleRepository(s.db) }
func (s *gormStore) Progress() ProgressRepository { return NewProgressRepository(s.db) }
func (s *gormStore) Quizzes() QuizRepository { return NewQuizRepository(s.db) }
func (s *gormStore) Rules() RuleRepository { return NewRuleRepository(s.db) }
func (s *gormStore) AuditEvents() AuditEventRepository { return NewAuditEventRepository(s.db) }

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// IsUniqueViolation reports whether err stems from a unique constraint. Drivers that
// do not translate errors are matched on their message.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") ||
		strings.Contains(message, "duplicate key") ||
		strings.Contains(message, "sqlstate 23505")
}

// forUpdate adds a row lock. The sqlite dialect drops the clause since its writers are
// already serialised.
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// likeEscape pairs with likePattern so user input never acts as a wildcard.
const likeEscape = ` ESCAPE '\'`

var likeReplacer = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// likePattern builds a case-insensitive substring pattern for a LOWER(column) LIKE
// clause. Wildcards in value are matched literally.
func likePattern(value string) string {
	return "%" + likeReplacer.Replace(strings.ToLower(strings.TrimSpace(value))) + "%"
}
