package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
	"github.com/noah-isme/gema-compliance-api/pkg/cloudinary"
)

const (
	assetKindVideo    = "video"
	assetKindDocument = "document"
)

// AssetStorage abstracts the destination of course assets.
type AssetStorage interface {
	Upload(ctx context.Context, asset cloudinary.Asset, reader io.Reader) (cloudinary.Stored, error)
}

// CatalogService administers courses, versions, their assets and quizzes.
type CatalogService interface {
	CreateCourse(ctx context.Context, actor models.User, req dto.CourseCreateRequest, ip string) (dto.CourseResponse, error)
	CreateVersion(ctx context.Context, actor models.User, courseID uint, req dto.CourseVersionCreateRequest, ip string) (dto.CourseVersionResponse, error)
	Publish(ctx context.Context, actor models.User, versionID uint, ip string) (dto.CourseVersionResponse, error)
	Retire(ctx context.Context, actor models.User, versionID uint, ip string) (dto.CourseVersionResponse, error)
	DeleteVersion(ctx context.Context, actor models.User, versionID uint, ip string) error
	UploadAsset(ctx context.Context, actor models.User, versionID uint, file *multipart.FileHeader, ip string) (dto.AssetUploadResponse, error)
	DefineQuiz(ctx context.Context, actor models.User, versionID uint, req dto.QuizDefinitionRequest, ip string) (dto.QuizResponse, error)
}

type catalogService struct {
	store     repository.Store
	storage   AssetStorage
	validator *validator.Validate
	maxSize   int64
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewCatalogService constructs the catalog service. storage may be nil, in which case
// uploads fail with ErrStorageUnavailable.
func NewCatalogService(store repository.Store, storage AssetStorage, validate *validator.Validate, maxSizeMB int, logger zerolog.Logger) CatalogService {
	if maxSizeMB <= 0 {
		maxSizeMB = 200
	}
	return &catalogService{
		store:     store,
		storage:   storage,
		validator: validate,
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
		logger:    logger.With().Str("component", "catalog_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-compliance-api/internal/service/catalog"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *catalogService) CreateCourse(ctx context.Context, actor models.User, req dto.CourseCreateRequest, ip string) (dto.CourseResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.CourseResponse{}, err
	}

	course := models.Course{
		Code:               strings.ToUpper(strings.TrimSpace(req.Code)),
		Title:              strings.TrimSpace(req.Title),
		Description:        strings.TrimSpace(req.Description),
		IsActive:           req.IsActive == nil || *req.IsActive,
		RequiredForCompany: req.RequiredForCompany,
		CreatedByID:        actorRef(actor),
	}

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Courses().Create(ctx, &course); err != nil {
			if repository.IsUniqueViolation(err) {
				return ErrCourseExists
			}
			return err
		}
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			ActorID:    actorRef(actor),
			Action:     models.AuditActionCourseCreated,
			ObjectType: "course",
			ObjectID:   strconv.FormatUint(uint64(course.ID), 10),
			Details:    map[string]interface{}{"code": course.Code},
			IPAddress:  ip,
		})
	})
	if err != nil {
		return dto.CourseResponse{}, err
	}

	return dto.NewCourseResponse(course), nil
}

func (s *catalogService) CreateVersion(ctx context.Context, actor models.User, courseID uint, req dto.CourseVersionCreateRequest, ip string) (dto.CourseVersionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.CourseVersionResponse{}, err
	}

	course, err := s.store.Courses().GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CourseVersionResponse{}, ErrCourseNotFound
		}
		return dto.CourseVersionResponse{}, err
	}

	passScore := models.DefaultPassScore
	if req.PassScore != nil {
		passScore = *req.PassScore
	}

	version := models.CourseVersion{
		CourseID:    course.ID,
		Version:     strings.TrimSpace(req.Version),
		Changelog:   strings.TrimSpace(req.Changelog),
		VideoURL:    strings.TrimSpace(req.VideoURL),
		DocumentURL: strings.TrimSpace(req.DocumentURL),
		PassScore:   passScore,
		CreatedByID: actorRef(actor),
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.CourseVersions().Create(ctx, &version); err != nil {
			if repository.IsUniqueViolation(err) {
				return ErrVersionExists
			}
			return err
		}
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			ActorID:    actorRef(actor),
			Action:     models.AuditActionCourseVersionCreated,
			ObjectType: "course_version",
			ObjectID:   strconv.FormatUint(uint64(version.ID), 10),
			Details:    map[string]interface{}{"course": course.Code, "version": version.Version},
			IPAddress:  ip,
		})
	})
	if err != nil {
		return dto.CourseVersionResponse{}, err
	}

	version.Course = course
	return dto.NewCourseVersionResponse(version), nil
}

// Publish freezes a draft version. Publishing twice is a no-op.
func (s *catalogService) Publish(ctx context.Context, actor models.User, versionID uint, ip string) (dto.CourseVersionResponse, error) {
	version, err := s.loadVersion(ctx, versionID)
	if err != nil {
		return dto.CourseVersionResponse{}, err
	}
	if version.IsRetired() {
		return dto.CourseVersionResponse{}, ErrVersionRetired
	}
	if version.IsPublished {
		return dto.NewCourseVersionResponse(version), nil
	}

	now := s.now()
	version.IsPublished = true
	version.PublishedAt = &now

	if err := s.saveWithAudit(ctx, actor, &version, models.AuditActionCourseVersionPublished, ip); err != nil {
		return dto.CourseVersionResponse{}, err
	}
	return dto.NewCourseVersionResponse(version), nil
}

// Retire withdraws a version from new assignments. Existing assignments and their
// certificates are unaffected.
func (s *catalogService) Retire(ctx context.Context, actor models.User, versionID uint, ip string) (dto.CourseVersionResponse, error) {
	version, err := s.loadVersion(ctx, versionID)
	if err != nil {
		return dto.CourseVersionResponse{}, err
	}
	if version.IsRetired() {
		return dto.NewCourseVersionResponse(version), nil
	}

	now := s.now()
	version.RetiredAt = &now

	if err := s.saveWithAudit(ctx, actor, &version, models.AuditActionCourseVersionRetired, ip); err != nil {
		return dto.CourseVersionResponse{}, err
	}
	return dto.NewCourseVersionResponse(version), nil
}

func (s *catalogService) DeleteVersion(ctx context.Context, actor models.User, versionID uint, ip string) error {
	version, err := s.loadVersion(ctx, versionID)
	if err != nil {
		return err
	}

	return s.store.Transaction(ctx, func(tx repository.Store) error {
		count, err := tx.CourseVersions().CountAssignments(ctx, version.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrVersionInUse
		}
		if err := tx.CourseVersions().Delete(ctx, version.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCourseVersionNotFound
			}
			return err
		}
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			ActorID:    actorRef(actor),
			Action:     models.AuditActionCourseVersionDeleted,
			ObjectType: "course_version",
			ObjectID:   strconv.FormatUint(uint64(version.ID), 10),
			Details:    map[string]interface{}{"course": version.Course.Code, "version": version.Version},
			IPAddress:  ip,
		})
	})
}

// UploadAsset stores a video or PDF for a draft version. The kind is detected from the
// file content, not the client-supplied name.
func (s *catalogService) UploadAsset(ctx context.Context, actor models.User, versionID uint, file *multipart.FileHeader, ip string) (dto.AssetUploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.upload_asset")
	span.SetAttributes(attribute.Int64("asset.version_id", int64(versionID)))
	defer span.End()

	if s.storage == nil {
		span.SetStatus(codes.Error, "storage unavailable")
		return dto.AssetUploadResponse{}, ErrStorageUnavailable
	}
	if file == nil {
		err := errors.New("file is required")
		span.SetStatus(codes.Error, "validation failed")
		return dto.AssetUploadResponse{}, err
	}
	if file.Size > s.maxSize {
		span.SetStatus(codes.Error, "payload too large")
		return dto.AssetUploadResponse{}, ErrAssetTooLarge
	}

	version, err := s.loadVersion(ctx, versionID)
	if err != nil {
		return dto.AssetUploadResponse{}, err
	}
	if version.IsPublished {
		return dto.AssetUploadResponse{}, ErrVersionPublished
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return dto.AssetUploadResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return dto.AssetUploadResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		span.SetStatus(codes.Error, "payload too large")
		return dto.AssetUploadResponse{}, ErrAssetTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	kind := assetKind(detected)
	span.SetAttributes(attribute.String("asset.mime", detected.String()), attribute.String("asset.kind", kind))
	if kind == "" {
		span.SetStatus(codes.Error, "type not allowed")
		return dto.AssetUploadResponse{}, ErrAssetTypeNotAllowed
	}

	stored, err := s.storage.Upload(ctx, cloudinary.Asset{
		CourseCode: version.Course.Code,
		Version:    version.Version,
		Filename:   filepath.Base(file.Filename),
		Kind:       kind,
	}, bytes.NewReader(buf.Bytes()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		s.logger.Error().Err(err).Uint("course_version_id", version.ID).Msg("failed to upload course asset")
		return dto.AssetUploadResponse{}, err
	}

	if kind == assetKindVideo {
		version.VideoURL = stored.URL
	} else {
		version.DocumentURL = stored.URL
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.CourseVersions().Update(ctx, &version); err != nil {
			return err
		}
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			ActorID:    actorRef(actor),
			Action:     models.AuditActionAssetUploaded,
			ObjectType: "course_version",
			ObjectID:   strconv.FormatUint(uint64(version.ID), 10),
			Details:    map[string]interface{}{"kind": kind, "url": stored.URL, "mime_type": detected.String()},
			IPAddress:  ip,
		})
	})
	if err != nil {
		return dto.AssetUploadResponse{}, err
	}

	span.SetStatus(codes.Ok, "uploaded")
	return dto.AssetUploadResponse{
		Kind:     kind,
		URL:      stored.URL,
		MimeType: detected.String(),
		Size:     int64(buf.Len()),
		Version:  dto.NewCourseVersionResponse(version),
	}, nil
}

// DefineQuiz replaces the quiz of a draft version.
func (s *catalogService) DefineQuiz(ctx context.Context, actor models.User, versionID uint, req dto.QuizDefinitionRequest, ip string) (dto.QuizResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.QuizResponse{}, err
	}

	version, err := s.loadVersion(ctx, versionID)
	if err != nil {
		return dto.QuizResponse{}, err
	}
	if version.IsPublished {
		return dto.QuizResponse{}, ErrVersionPublished
	}

	quiz := models.Quiz{
		CourseVersionID: version.ID,
		Title:           strings.TrimSpace(req.Title),
		IsRequired:      req.IsRequired == nil || *req.IsRequired,
	}
	if quiz.Title == "" {
		quiz.Title = "Course Quiz"
	}

	for i, question := range req.Questions {
		correct := 0
		choices := make([]models.QuizChoice, 0, len(question.Choices))
		for _, choice := range question.Choices {
			if choice.IsCorrect {
				correct++
			}
			choices = append(choices, models.QuizChoice{Text: strings.TrimSpace(choice.Text), IsCorrect: choice.IsCorrect})
		}
		if correct != 1 {
			return dto.QuizResponse{}, ErrInvalidQuizDefinition
		}
		quiz.Questions = append(quiz.Questions, models.QuizQuestion{
			Prompt:   strings.TrimSpace(question.Prompt),
			Position: i + 1,
			Choices:  choices,
		})
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Quizzes().Replace(ctx, &quiz); err != nil {
			return err
		}
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			ActorID:    actorRef(actor),
			Action:     models.AuditActionQuizDefined,
			ObjectType: "course_version",
			ObjectID:   strconv.FormatUint(uint64(version.ID), 10),
			Details:    map[string]interface{}{"questions": len(quiz.Questions), "required": quiz.IsRequired},
			IPAddress:  ip,
		})
	})
	if err != nil {
		return dto.QuizResponse{}, err
	}

	return dto.NewQuizResponse(quiz, version.EffectivePassScore()), nil
}

func (s *catalogService) loadVersion(ctx context.Context, versionID uint) (models.CourseVersion, error) {
	version, err := s.store.CourseVersions().GetByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CourseVersion{}, ErrCourseVersionNotFound
		}
		return models.CourseVersion{}, err
	}
	return version, nil
}

func (s *catalogService) saveWithAudit(ctx context.Context, actor models.User, version *models.CourseVersion, action, ip string) error {
	return s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.CourseVersions().Update(ctx, version); err != nil {
			return err
		}
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			ActorID:    actorRef(actor),
			Action:     action,
			ObjectType: "course_version",
			ObjectID:   strconv.FormatUint(uint64(version.ID), 10),
			Details:    map[string]interface{}{"course": version.Course.Code, "version": version.Version},
			IPAddress:  ip,
		})
	})
}

func assetKind(detected *mimetype.MIME) string {
	for mime := detected; mime != nil; mime = mime.Parent() {
		switch {
		case strings.HasPrefix(mime.String(), "video/"):
			return assetKindVideo
		case mime.Is("application/pdf"):
			return assetKindDocument
		}
	}
	return ""
}
