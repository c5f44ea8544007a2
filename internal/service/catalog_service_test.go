package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/pkg/cloudinary"
)

type fakeStorage struct {
	assets []cloudinary.Asset
	bodies [][]byte
}

func (s *fakeStorage) Upload(_ context.Context, asset cloudinary.Asset, reader io.Reader) (cloudinary.Stored, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return cloudinary.Stored{}, err
	}
	s.assets = append(s.assets, asset)
	s.bodies = append(s.bodies, body)
	return cloudinary.Stored{
		URL:      "https://res.cloudinary.com/demo/" + cloudinary.AssetFolder("compliance", asset.CourseCode, asset.Version) + "/" + asset.Filename,
		PublicID: asset.Filename,
	}, nil
}

func multipartFile(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(&body, writer.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

func newTestCatalog(f fixture, storage AssetStorage) *catalogService {
	svc := NewCatalogService(f.store, storage, f.validator(), 1, testLogger()).(*catalogService)
	svc.now = fixedClock(testNow)
	return svc
}

func TestCatalogCourseAndVersionLifecycle(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", func(u *models.User) { u.IsStaff = true })
	svc := newTestCatalog(f, nil)
	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, admin, dto.CourseCreateRequest{Code: "hipaa-100", Title: "HIPAA Basics"}, "")
	require.NoError(t, err)
	require.Equal(t, "HIPAA-100", course.Code)
	require.True(t, course.IsActive)

	_, err = svc.CreateCourse(ctx, admin, dto.CourseCreateRequest{Code: "HIPAA-100", Title: "Duplicate"}, "")
	require.ErrorIs(t, err, ErrCourseExists)

	version, err := svc.CreateVersion(ctx, admin, course.ID, dto.CourseVersionCreateRequest{Version: "2024"}, "")
	require.NoError(t, err)
	require.False(t, version.IsPublished)
	require.Equal(t, models.DefaultPassScore, version.PassScore)

	_, err = svc.CreateVersion(ctx, admin, course.ID, dto.CourseVersionCreateRequest{Version: "2024"}, "")
	require.ErrorIs(t, err, ErrVersionExists)

	_, err = svc.CreateVersion(ctx, admin, 9999, dto.CourseVersionCreateRequest{Version: "1"}, "")
	require.ErrorIs(t, err, ErrCourseNotFound)

	published, err := svc.Publish(ctx, admin, version.ID, "")
	require.NoError(t, err)
	require.True(t, published.IsPublished)
	require.NotNil(t, published.PublishedAt)

	again, err := svc.Publish(ctx, admin, version.ID, "")
	require.NoError(t, err)
	require.True(t, again.PublishedAt.Equal(*published.PublishedAt), "publishing twice keeps the first timestamp")

	retired, err := svc.Retire(ctx, admin, version.ID, "")
	require.NoError(t, err)
	require.NotNil(t, retired.RetiredAt)

	_, err = svc.Publish(ctx, admin, version.ID, "")
	require.ErrorIs(t, err, ErrVersionRetired)

	require.Len(t, f.auditActions(models.AuditActionCourseCreated), 1)
	require.Len(t, f.auditActions(models.AuditActionCourseVersionPublished), 1)
	require.Len(t, f.auditActions(models.AuditActionCourseVersionRetired), 1)
}

func TestCatalogDeleteVersionInUse(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", func(u *models.User) { u.IsStaff = true })
	learner := f.user("alice")
	used := f.version("SEC-101", "1.0")
	unused := f.draft("SEC-101", "2.0")
	f.assignment(learner, used)

	svc := newTestCatalog(f, nil)
	ctx := context.Background()

	require.ErrorIs(t, svc.DeleteVersion(ctx, admin, used.ID, ""), ErrVersionInUse)
	require.NoError(t, svc.DeleteVersion(ctx, admin, unused.ID, ""))
	require.ErrorIs(t, svc.DeleteVersion(ctx, admin, unused.ID, ""), ErrCourseVersionNotFound)

	var count int64
	require.NoError(t, f.db.Model(&models.CourseVersion{}).Where("id = ?", used.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
	require.Len(t, f.auditActions(models.AuditActionCourseVersionDeleted), 1)
}

func TestCatalogUploadAssetDetectsKind(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", func(u *models.User) { u.IsStaff = true })
	draft := f.draft("SEC-101", "2.0")
	storage := &fakeStorage{}
	svc := newTestCatalog(f, storage)
	ctx := context.Background()

	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	response, err := svc.UploadAsset(ctx, admin, draft.ID, multipartFile(t, "handbook.pdf", pdf), "")
	require.NoError(t, err)
	require.Equal(t, "document", response.Kind)
	require.Equal(t, "application/pdf", response.MimeType)
	require.Equal(t, response.URL, response.Version.DocumentURL)
	require.Len(t, storage.assets, 1)
	require.Equal(t, "SEC-101", storage.assets[0].CourseCode)
	require.Equal(t, pdf, storage.bodies[0])

	_, err = svc.UploadAsset(ctx, admin, draft.ID, multipartFile(t, "notes.pdf", []byte("just some text pretending to be a pdf")), "")
	require.ErrorIs(t, err, ErrAssetTypeNotAllowed)

	oversized := multipartFile(t, "big.pdf", append(append([]byte{}, pdf...), bytes.Repeat([]byte{'x'}, 1<<20)...))
	_, err = svc.UploadAsset(ctx, admin, draft.ID, oversized, "")
	require.ErrorIs(t, err, ErrAssetTooLarge)

	published := f.version("SEC-101", "1.0")
	_, err = svc.UploadAsset(ctx, admin, published.ID, multipartFile(t, "handbook.pdf", pdf), "")
	require.ErrorIs(t, err, ErrVersionPublished)

	_, err = newTestCatalog(f, nil).UploadAsset(ctx, admin, draft.ID, multipartFile(t, "handbook.pdf", pdf), "")
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestCatalogDefineQuiz(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", func(u *models.User) { u.IsStaff = true })
	draft := f.draft("SEC-101", "2.0")
	svc := newTestCatalog(f, nil)
	ctx := context.Background()

	valid := dto.QuizDefinitionRequest{
		Questions: []dto.QuizQuestionRequest{
			{Prompt: "Lock your screen?", Choices: []dto.QuizChoiceRequest{{Text: "Yes", IsCorrect: true}, {Text: "No"}}},
			{Prompt: "Share passwords?", Choices: []dto.QuizChoiceRequest{{Text: "Never", IsCorrect: true}, {Text: "Sometimes"}}},
		},
	}
	quiz, err := svc.DefineQuiz(ctx, admin, draft.ID, valid, "")
	require.NoError(t, err)
	require.True(t, quiz.IsRequired)
	require.Equal(t, "Course Quiz", quiz.Title)
	require.Len(t, quiz.Questions, 2)
	require.Equal(t, 2, quiz.Questions[1].Position)

	twoCorrect := dto.QuizDefinitionRequest{
		Questions: []dto.QuizQuestionRequest{
			{Prompt: "Pick", Choices: []dto.QuizChoiceRequest{{Text: "A", IsCorrect: true}, {Text: "B", IsCorrect: true}}},
		},
	}
	_, err = svc.DefineQuiz(ctx, admin, draft.ID, twoCorrect, "")
	require.ErrorIs(t, err, ErrInvalidQuizDefinition)

	noneCorrect := dto.QuizDefinitionRequest{
		Questions: []dto.QuizQuestionRequest{
			{Prompt: "Pick", Choices: []dto.QuizChoiceRequest{{Text: "A"}, {Text: "B"}}},
		},
	}
	_, err = svc.DefineQuiz(ctx, admin, draft.ID, noneCorrect, "")
	require.ErrorIs(t, err, ErrInvalidQuizDefinition)

	published := f.version("SEC-101", "1.0")
	_, err = svc.DefineQuiz(ctx, admin, published.ID, valid, "")
	require.ErrorIs(t, err, ErrVersionPublished)

	require.Len(t, f.auditActions(models.AuditActionQuizDefined), 1)
}
