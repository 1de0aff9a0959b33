package models

import (
	"time"

	"github.com/google/uuid"

	certmodels "certexport/internal/certificate/models"
)

// ContentTypePDF is the media type of rendered documents.
const ContentTypePDF = "application/pdf"

// FilledTemplate is template markup with every known placeholder replaced.
// Leftovers lists placeholder tokens the template used but the filler had
// no value for; a well-formed template has none.
type FilledTemplate struct {
	Type      certmodels.TemplateType
	Markup    []byte
	Leftovers []string
}

// Document is a rendered, paginated export. Only the renderer creates one.
type Document struct {
	ID            uuid.UUID
	CertificateID string
	Type          certmodels.TemplateType
	ContentType   string
	Data          []byte
	Pages         int
	RenderedAt    time.Time
	Cached        bool
}

// Request asks for one certificate to be exported.
type Request struct {
	Token     certmodels.Token
	Selection certmodels.TemplateType
}

// BatchResult is the outcome of one Request in a batch, in request order.
type BatchResult struct {
	CertificateID string
	Document      *Document
	Err           error
}
