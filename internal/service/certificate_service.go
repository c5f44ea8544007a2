package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
	"github.com/noah-isme/gema-compliance-api/pkg/certificate"
)

// CertificateFile is a rendered certificate ready for download.
type CertificateFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// CertificateService renders certificates for completed cycles.
type CertificateService interface {
	Download(ctx context.Context, actor models.User, certificateID string, ip string) (CertificateFile, error)
}

type certificateService struct {
	store    repository.Store
	renderer certificate.Renderer
	logger   zerolog.Logger
}

// NewCertificateService constructs the certificate service.
func NewCertificateService(store repository.Store, renderer certificate.Renderer, logger zerolog.Logger) CertificateService {
	return &certificateService{
		store:    store,
		renderer: renderer,
		logger:   logger.With().Str("component", "certificate_service").Logger(),
	}
}

// Download renders the certificate for its owner or an auditor. Anyone else, and any
// cycle that is not completed, gets ErrCertificateNotFound.
func (s *certificateService) Download(ctx context.Context, actor models.User, certificateID string, ip string) (CertificateFile, error) {
	id := strings.ToUpper(strings.TrimSpace(certificateID))
	if id == "" {
		return CertificateFile{}, ErrCertificateNotFound
	}

	cycle, err := s.store.Cycles().GetByCertificateID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CertificateFile{}, ErrCertificateNotFound
		}
		return CertificateFile{}, err
	}

	assignment := cycle.Assignment
	if assignment == nil || assignment.Assignee.ID == 0 || assignment.CourseVersion.Course.ID == 0 {
		return CertificateFile{}, ErrCertificateNotFound
	}
	if assignment.AssigneeID != actor.ID && !actor.CanAuditAll() {
		return CertificateFile{}, ErrCertificateNotFound
	}
	if cycle.CompletedAt == nil {
		return CertificateFile{}, ErrCertificateNotFound
	}
	cycle.ApplyDefaultExpiry(0)

	body, err := s.renderer.Render(certificate.Document{
		FullName:      assignment.Assignee.DisplayName(),
		CourseTitle:   assignment.CourseVersion.Course.Title,
		Version:       assignment.CourseVersion.Version,
		CompletedAt:   *cycle.CompletedAt,
		ExpiresAt:     *cycle.ExpiresAt,
		CertificateID: cycle.CertificateID,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("certificate_id", id).Msg("failed to render certificate")
		return CertificateFile{}, err
	}

	if err := RecordAudit(ctx, s.store.AuditEvents(), AuditEntry{
		ActorID:    actorRef(actor),
		Action:     models.AuditActionCertificateDownloaded,
		ObjectType: "assignment_cycle",
		ObjectID:   fmt.Sprintf("%d", cycle.ID),
		Details:    map[string]interface{}{"certificate_id": cycle.CertificateID},
		IPAddress:  ip,
	}); err != nil {
		s.logger.Warn().Err(err).Str("certificate_id", id).Msg("failed to record certificate download")
	}

	return CertificateFile{
		Filename:    fmt.Sprintf("certificate_%s.%s", cycle.CertificateID, s.renderer.Extension()),
		ContentType: s.renderer.ContentType(),
		Body:        body,
	}, nil
}
