package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/compliance"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
)

// ErrSeedDistribution indicates the demo distribution percentages do not add to 100.
var ErrSeedDistribution = errors.New("seed distribution must add up to 100")

// SeedOptions configures the demo data set.
type SeedOptions struct {
	Code          string
	Title         string
	Version       string
	Users         int
	PctCompliant  int
	PctDueSoon    int
	PctExpired    int
	PctNotStarted int
	Seed          int64
}

// DefaultSeedOptions returns the stock demo configuration.
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{
		Code:          "DEMO-101",
		Title:         "Demo Compliance Course",
		Version:       "1.0",
		PctCompliant:  40,
		PctDueSoon:    30,
		PctExpired:    20,
		PctNotStarted: 10,
		Seed:          1337,
	}
}

// SeedResult reports what the demo seeding created.
type SeedResult struct {
	CourseID        uint
	CourseVersionID uint
	Assignments     int
	Skipped         int
	ByStatus        map[compliance.Status]int
}

// SeedService fills a database with demo compliance data.
type SeedService interface {
	SeedDemo(ctx context.Context, opts SeedOptions) (SeedResult, error)
}

type seedService struct {
	store  repository.Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewSeedService constructs the demo seeder.
func NewSeedService(store repository.Store, logger zerolog.Logger) SeedService {
	return &seedService{
		store:  store,
		logger: logger.With().Str("component", "seed_service").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SeedDemo ensures a published demo course version exists and gives active users an
// assignment whose latest cycle lands in each status bucket according to the
// distribution. Users that already hold an assignment for the version are skipped,
// so seeding twice is safe.
func (s *seedService) SeedDemo(ctx context.Context, opts SeedOptions) (SeedResult, error) {
	if opts.PctCompliant+opts.PctDueSoon+opts.PctExpired+opts.PctNotStarted != 100 {
		return SeedResult{}, ErrSeedDistribution
	}

	now := s.now()
	rng := rand.New(rand.NewSource(opts.Seed))
	result := SeedResult{ByStatus: map[compliance.Status]int{}}

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		version, err := s.ensureVersion(ctx, tx, opts, now)
		if err != nil {
			return err
		}
		result.CourseID = version.CourseID
		result.CourseVersionID = version.ID

		users, err := tx.Users().ListActive(ctx, repository.UserFilter{})
		if err != nil {
			return err
		}
		if opts.Users > 0 && len(users) > opts.Users {
			users = users[:opts.Users]
		}

		buckets := seedBuckets(opts)
		rng.Shuffle(len(buckets), func(i, j int) { buckets[i], buckets[j] = buckets[j], buckets[i] })

		for i, user := range users {
			exists, err := tx.Assignments().ExistsForUserAndVersion(ctx, user.ID, version.ID)
			if err != nil {
				return err
			}
			if exists {
				result.Skipped++
				continue
			}

			status := buckets[i%len(buckets)]
			if err := seedAssignment(ctx, tx, rng, user, version, status, now); err != nil {
				return fmt.Errorf("seed assignment for %s: %w", user.Username, err)
			}
			result.Assignments++
			result.ByStatus[status]++
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}

	s.logger.Info().
		Uint("course_version_id", result.CourseVersionID).
		Int("assignments", result.Assignments).
		Int("skipped", result.Skipped).
		Msg("demo data seeded")

	return result, nil
}

func (s *seedService) ensureVersion(ctx context.Context, tx repository.Store, opts SeedOptions, now time.Time) (models.CourseVersion, error) {
	code := strings.ToUpper(strings.TrimSpace(opts.Code))
	course, err := tx.Courses().GetByCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		course = models.Course{
			Code:        code,
			Title:       opts.Title,
			Description: "Seeded demo course for audit and compliance previews.",
			IsActive:    true,
		}
		err = tx.Courses().Create(ctx, &course)
	}
	if err != nil {
		return models.CourseVersion{}, err
	}

	version, err := tx.CourseVersions().GetByLabel(ctx, course.ID, opts.Version)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		version = models.CourseVersion{
			CourseID:    course.ID,
			Version:     opts.Version,
			IsPublished: true,
			PublishedAt: &now,
			PassScore:   models.DefaultPassScore,
		}
		if err := tx.CourseVersions().Create(ctx, &version); err != nil {
			return models.CourseVersion{}, err
		}
		version.Course = course
		return version, nil
	}
	if err != nil {
		return models.CourseVersion{}, err
	}

	if !version.IsPublished {
		version.IsPublished = true
		if version.PublishedAt == nil {
			version.PublishedAt = &now
		}
		if err := tx.CourseVersions().Update(ctx, &version); err != nil {
			return models.CourseVersion{}, err
		}
	}
	return version, nil
}

func seedBuckets(opts SeedOptions) []compliance.Status {
	buckets := make([]compliance.Status, 0, 100)
	add := func(status compliance.Status, n int) {
		for i := 0; i < n; i++ {
			buckets = append(buckets, status)
		}
	}
	add(compliance.StatusCompliant, opts.PctCompliant)
	add(compliance.StatusDueSoon, opts.PctDueSoon)
	add(compliance.StatusExpired, opts.PctExpired)
	add(compliance.StatusNotStarted, opts.PctNotStarted)
	return buckets
}

func seedAssignment(ctx context.Context, tx repository.Store, rng *rand.Rand, user models.User, version models.CourseVersion, status compliance.Status, now time.Time) error {
	due := now.AddDate(0, 0, 14)
	assignment := models.Assignment{
		AssigneeID:      user.ID,
		CourseVersionID: version.ID,
		AssignedAt:      now,
		DueAt:           &due,
		Status:          models.AssignmentStatusAssigned,
	}
	if status != compliance.StatusNotStarted {
		assignment.Status = models.AssignmentStatusCompleted
	}
	if err := tx.Assignments().Create(ctx, &assignment); err != nil {
		return err
	}

	cycle := models.AssignmentCycle{AssignmentID: assignment.ID}
	if status != compliance.StatusNotStarted {
		completed := now.AddDate(0, 0, -randomBetween(rng, 1, 120))
		var expires time.Time
		switch status {
		case compliance.StatusCompliant:
			expires = now.AddDate(0, 0, randomBetween(rng, 60, 180))
		case compliance.StatusDueSoon:
			expires = now.AddDate(0, 0, randomBetween(rng, 1, compliance.DueSoonDays))
		default:
			expires = now.AddDate(0, 0, -randomBetween(rng, 1, 180))
			completed = compliance.AddMonths(expires, -compliance.DefaultRenewalMonths)
		}
		score := randomBetween(rng, 80, 100)
		cycle.CompletedAt = &completed
		cycle.ExpiresAt = &expires
		cycle.Score = &score
		cycle.Passed = true
	}
	return tx.Cycles().Create(ctx, &cycle)
}

func randomBetween(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}
