package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Asset describes a course asset to upload.
type Asset struct {
	CourseCode string
	Version    string
	Filename   string
	// Kind is "video" or "document".
	Kind string
}

// Stored is the outcome of an upload.
type Stored struct {
	URL      string
	PublicID string
}

// Service uploads course version assets to Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: cfg.Folder,
		logger: logger.With().Str("component", "cloudinary").Logger(),
		now:    time.Now,
	}, nil
}

// Upload stores the asset under <folder>/<course>/<version> and returns its secure URL.
// Videos go to the video resource type; documents are stored raw so PDFs are served
// untouched.
func (s *Service) Upload(ctx context.Context, asset Asset, reader io.Reader) (Stored, error) {
	params := uploader.UploadParams{
		Folder:       AssetFolder(s.folder, asset.CourseCode, asset.Version),
		PublicID:     PublicID(asset.Filename, s.now()),
		ResourceType: resourceType(asset.Kind),
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return Stored{}, fmt.Errorf("failed to upload course asset: %w", err)
	}

	s.logger.Info().
		Str("public_id", result.PublicID).
		Str("course_code", asset.CourseCode).
		Str("version", asset.Version).
		Str("kind", asset.Kind).
		Msg("course asset uploaded")

	return Stored{URL: result.SecureURL, PublicID: result.PublicID}, nil
}

// AssetFolder builds the folder path for a course version.
func AssetFolder(root, courseCode, version string) string {
	parts := []string{strings.Trim(root, "/"), slug(courseCode), slug(version)}
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return path.Join(kept...)
}

// PublicID derives a stable-looking public id from the uploaded file name.
func PublicID(filename string, now time.Time) string {
	base := slug(strings.TrimSuffix(filename, path.Ext(filename)))
	if base == "" {
		base = "asset"
	}
	return fmt.Sprintf("%s-%d", base, now.Unix())
}

func resourceType(kind string) string {
	switch kind {
	case "video":
		return "video"
	case "document":
		return "raw"
	default:
		return "auto"
	}
}

func slug(value string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, strings.TrimSpace(value))
	return strings.Trim(mapped, "-")
}
