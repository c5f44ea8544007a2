package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// QuizRepository persists quizzes and their attempts.
type QuizRepository interface {
	GetByCourseVersion(ctx context.Context, versionID uint) (models.Quiz, error)
	Replace(ctx context.Context, quiz *models.Quiz) error
	CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error
	LatestPassingAttempt(ctx context.Context, assignmentID uint, since *time.Time) (models.QuizAttempt, error)
}

type quizRepository struct {
	db *gorm.DB
}

// NewQuizRepository instantiates a GORM-backed repository.
func NewQuizRepository(db *gorm.DB) QuizRepository {
	return &quizRepository{db: db}
}

func (r *quizRepository) GetByCourseVersion(ctx context.Context, versionID uint) (models.Quiz, error) {
	var quiz models.Quiz
	if err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("id ASC")
		}).
		Preload("Questions.Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("course_version_id = ?", versionID).
		First(&quiz).Error; err != nil {
		return models.Quiz{}, err
	}
	return quiz, nil
}

// Replace swaps the quiz of a course version, questions and choices included.
func (r *quizRepository) Replace(ctx context.Context, quiz *models.Quiz) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Quiz
		err := tx.Where("course_version_id = ?", quiz.CourseVersionID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			questionIDs := tx.Model(&models.QuizQuestion{}).Select("id").Where("quiz_id = ?", existing.ID)
			if err := tx.Where("question_id IN (?)", questionIDs).Delete(&models.QuizChoice{}).Error; err != nil {
				return err
			}
			if err := tx.Where("quiz_id = ?", existing.ID).Delete(&models.QuizQuestion{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Quiz{}, existing.ID).Error; err != nil {
				return err
			}
		}
		quiz.ID = 0
		return tx.Create(quiz).Error
	})
}

func (r *quizRepository) CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// LatestPassingAttempt returns the newest passing attempt for the assignment submitted
// strictly after since, when since is set.
func (r *quizRepository) LatestPassingAttempt(ctx context.Context, assignmentID uint, since *time.Time) (models.QuizAttempt, error) {
	query := r.db.WithContext(ctx).
		Where("assignment_id = ? AND passed = ?", assignmentID, true)
	if since != nil {
		query = query.Where("submitted_at > ?", *since)
	}

	var attempt models.QuizAttempt
	if err := query.Order("submitted_at DESC").Order("id DESC").First(&attempt).Error; err != nil {
		return models.QuizAttempt{}, err
	}
	return attempt, nil
}
