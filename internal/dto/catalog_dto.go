package dto

import (
	"time"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// CourseCreateRequest defines a new course.
type CourseCreateRequest struct {
	Code               string `json:"code" validate:"required,max=50"`
	Title              string `json:"title" validate:"required,max=255"`
	Description        string `json:"description"`
	IsActive           *bool  `json:"is_active"`
	RequiredForCompany bool   `json:"required_for_company"`
}

// CourseResponse is the catalog view of a course.
type CourseResponse struct {
	ID                 uint      `json:"id"`
	Code               string    `json:"code"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	IsActive           bool      `json:"is_active"`
	RequiredForCompany bool      `json:"required_for_company"`
	CreatedAt          time.Time `json:"created_at"`
}

// NewCourseResponse converts a course model.
func NewCourseResponse(course models.Course) CourseResponse {
	return CourseResponse{
		ID:                 course.ID,
		Code:               course.Code,
		Title:              course.Title,
		Description:        course.Description,
		IsActive:           course.IsActive,
		RequiredForCompany: course.RequiredForCompany,
		CreatedAt:          course.CreatedAt,
	}
}

// CourseVersionCreateRequest drafts a new version of a course.
type CourseVersionCreateRequest struct {
	Version     string `json:"version" validate:"required,max=40"`
	Changelog   string `json:"changelog"`
	VideoURL    string `json:"video_url" validate:"omitempty,url,max=512"`
	DocumentURL string `json:"document_url" validate:"omitempty,url,max=512"`
	PassScore   *int   `json:"pass_score" validate:"omitempty,gte=0,lte=100"`
}

// CourseVersionResponse is the catalog view of a version.
type CourseVersionResponse struct {
	ID          uint       `json:"id"`
	CourseID    uint       `json:"course_id"`
	CourseCode  string     `json:"course_code"`
	Version     string     `json:"version"`
	Changelog   string     `json:"changelog"`
	VideoURL    string     `json:"video_url"`
	DocumentURL string     `json:"document_url"`
	IsPublished bool       `json:"is_published"`
	PublishedAt *time.Time `json:"published_at"`
	RetiredAt   *time.Time `json:"retired_at"`
	PassScore   int        `json:"pass_score"`
}

// NewCourseVersionResponse converts a version model.
func NewCourseVersionResponse(version models.CourseVersion) CourseVersionResponse {
	return CourseVersionResponse{
		ID:          version.ID,
		CourseID:    version.CourseID,
		CourseCode:  version.Course.Code,
		Version:     version.Version,
		Changelog:   version.Changelog,
		VideoURL:    version.VideoURL,
		DocumentURL: version.DocumentURL,
		IsPublished: version.IsPublished,
		PublishedAt: version.PublishedAt,
		RetiredAt:   version.RetiredAt,
		PassScore:   version.EffectivePassScore(),
	}
}

// AssetUploadResponse reports an uploaded course asset.
type AssetUploadResponse struct {
	Kind     string                `json:"kind"`
	URL      string                `json:"url"`
	MimeType string                `json:"mime_type"`
	Size     int64                 `json:"size_bytes"`
	Version  CourseVersionResponse `json:"version"`
}
