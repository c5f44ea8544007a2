package certificate

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// ContentType is the media type produced by the HTML renderer.
const ContentType = "text/html; charset=utf-8"

// Document holds the fields printed on a certificate.
type Document struct {
	FullName      string
	CourseTitle   string
	Version       string
	CompletedAt   time.Time
	ExpiresAt     time.Time
	CertificateID string
}

// Renderer turns a certificate document into a downloadable file.
type Renderer interface {
	Render(doc Document) ([]byte, error)
	ContentType() string
	Extension() string
}

// HTMLRenderer renders a printable HTML certificate. Free-text fields are stripped of
// markup before templating.
type HTMLRenderer struct {
	tmpl   *template.Template
	policy *bluemonday.Policy
	issuer string
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Certificate {{.CertificateID}}</title>
<style>
body{font-family:Georgia,serif;text-align:center;padding:48px;border:12px double #1f3a5f}
h1{font-size:40px;margin-bottom:8px}
.name{font-size:32px;margin:24px 0}
.meta{font-size:14px;color:#444}
</style>
</head>
<body>
<h1>Certificate of Completion</h1>
<p>This certifies that</p>
<p class="name">{{.FullName}}</p>
<p>has completed</p>
<p><strong>{{.CourseTitle}}</strong> (version {{.Version}})</p>
<p class="meta">Completed {{.Completed}} &middot; Valid until {{.Expires}}</p>
<p class="meta">Certificate ID {{.CertificateID}}</p>
<p class="meta">{{.Issuer}}</p>
</body>
</html>
`

// NewHTMLRenderer builds the renderer. issuer is printed in the footer.
func NewHTMLRenderer(issuer string) (*HTMLRenderer, error) {
	tmpl, err := template.New("certificate").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse certificate template: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl, policy: bluemonday.StrictPolicy(), issuer: issuer}, nil
}

func (r *HTMLRenderer) Render(doc Document) ([]byte, error) {
	if strings.TrimSpace(doc.CertificateID) == "" {
		return nil, fmt.Errorf("certificate id is required")
	}

	data := struct {
		FullName      string
		CourseTitle   string
		Version       string
		Completed     string
		Expires       string
		CertificateID string
		Issuer        string
	}{
		FullName:      r.clean(doc.FullName),
		CourseTitle:   r.clean(doc.CourseTitle),
		Version:       r.clean(doc.Version),
		Completed:     doc.CompletedAt.Format("January 2, 2006"),
		Expires:       doc.ExpiresAt.Format("January 2, 2006"),
		CertificateID: r.clean(doc.CertificateID),
		Issuer:        r.clean(r.issuer),
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *HTMLRenderer) ContentType() string { return ContentType }

func (r *HTMLRenderer) Extension() string { return "html" }

func (r *HTMLRenderer) clean(value string) string {
	return strings.TrimSpace(r.policy.Sanitize(value))
}
