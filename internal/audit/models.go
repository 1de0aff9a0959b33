package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names what happened to a certificate.
type Action string

const (
	ActionCertificateImported     Action = "certificate_imported"
	ActionCertificateExported     Action = "certificate_exported"
	ActionCertificateExportFailed Action = "certificate_export_failed"
)

// Event is emitted from export logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID            uuid.UUID `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        Action    `json:"action"`
	CertificateID string    `json:"certificate_id"`
	TemplateType  string    `json:"template_type,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	ClientIP      string    `json:"client_ip,omitempty"`
	Device        string    `json:"device,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	Pages         int       `json:"pages,omitempty"`
	Cached        bool      `json:"cached,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
}
