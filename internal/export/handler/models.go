package handler

import (
	"encoding/json"
	"errors"

	certmodels "certexport/internal/certificate/models"
)

// CertificateRequest carries a certificate token either as the CWT-JSON
// claims map or only as its HC1 QR payload, optionally with a template to
// attach.
type CertificateRequest struct {
	Certificate json.RawMessage  `json:"certificate,omitempty"`
	QRPayload   string           `json:"qr_payload"`
	Template    *TemplateRequest `json:"template,omitempty"`
}

// TemplateRequest is an SVG template. Data is base64 in JSON.
type TemplateRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data []byte `json:"data"`
}

func (r *CertificateRequest) Validate() error {
	if len(r.Certificate) == 0 && r.QRPayload == "" {
		return errors.New("certificate or qr_payload is required")
	}
	if r.Template != nil {
		if len(r.Template.Data) == 0 {
			return errors.New("template data is required")
		}
		if _, err := certmodels.ParseTemplateType(r.Template.Type); err != nil {
			return err
		}
	}
	return nil
}

type ImportResponse struct {
	ID string `json:"id"`
}

type CertificateResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	DateOfBirth   string   `json:"date_of_birth"`
	IssuerCountry string   `json:"issuer_country,omitempty"`
	EntryTypes    []string `json:"entry_types"`
	Exportable    bool     `json:"exportable"`
	TemplateType  string   `json:"template_type,omitempty"`
}

type BatchRequest struct {
	Items []BatchItem `json:"items"`
}

type BatchItem struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

func (r *BatchRequest) Validate() error {
	if len(r.Items) == 0 {
		return errors.New("items must not be empty")
	}
	for _, item := range r.Items {
		if item.ID == "" {
			return errors.New("every item needs an id")
		}
	}
	return nil
}

type BatchResponse struct {
	Results []BatchItemResult `json:"results"`
}

// BatchItemResult carries either a base64 PDF or an error code.
type BatchItemResult struct {
	ID          string `json:"id"`
	Pages       int    `json:"pages,omitempty"`
	Document    []byte `json:"document,omitempty"`
	Error       string `json:"error,omitempty"`
	Description string `json:"error_description,omitempty"`
}
