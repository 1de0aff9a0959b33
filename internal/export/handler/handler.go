// Package handler exposes certificate import and export over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certexport/internal/certificate/codec"
	certmodels "certexport/internal/certificate/models"
	"certexport/internal/export/format"
	"certexport/internal/export/models"
	"certexport/internal/platform/middleware"
	dErrors "certexport/pkg/domain-errors"
	"certexport/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

const (
	ScopeWrite  = "certificates:write"
	ScopeExport = "certificates:export"

	contentTypeCBOR = "application/cbor"
	headerQRPayload = "X-QR-Payload"
)

// Service defines the export operations the handler needs.
type Service interface {
	Import(ctx context.Context, tok certmodels.Token) (string, error)
	Get(ctx context.Context, id string) (certmodels.Token, error)
	Export(ctx context.Context, tok certmodels.Token, selection certmodels.TemplateType) (*models.Document, error)
	ExportByID(ctx context.Context, id string, selection certmodels.TemplateType) (*models.Document, error)
	ExportBatch(ctx context.Context, reqs []models.Request) ([]models.BatchResult, error)
	MaxBatchSize() int
}

// Handler handles certificate endpoints.
type Handler struct {
	service      Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

// New creates a Handler. A nil validator leaves the routes unauthenticated.
func New(service Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{service: service, logger: logger, jwtValidator: jwtValidator}
}

// Register registers the certificate routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		write := func(next http.Handler) http.Handler { return next }
		export := write
		if h.jwtValidator != nil {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			write = middleware.RequireScope(ScopeWrite, h.logger)
			export = middleware.RequireScope(ScopeExport, h.logger)
		}

		r.With(write).Post("/certificates", h.handleImport)
		r.With(export).Get("/certificates/{id}", h.handleGet)
		r.With(export).Post("/certificates/{id}/export", h.handleExportByID)
		r.With(export).Post("/exports", h.handleExportInline)
		r.With(export).Post("/exports/batch", h.handleExportBatch)
	})
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.decodeToken(w, r)
	if !ok {
		return
	}
	id, err := h.service.Import(r.Context(), tok)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ImportResponse{ID: id})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tok, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := CertificateResponse{
		ID:            tok.ID(),
		Name:          format.FullName(tok.Certificate.Name),
		DateOfBirth:   tok.Certificate.DateOfBirth,
		IssuerCountry: tok.IssuerCountry,
		EntryTypes:    entryTypes(tok.Certificate),
		Exportable:    tok.Certificate.CanExport(),
	}
	if tok.Certificate.CanExport() {
		resp.TemplateType = string(tok.Certificate.Template.Type)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExportByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	selection, err := selectionParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.service.ExportByID(r.Context(), id, selection)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeDocument(w, r, doc)
}

func (h *Handler) handleExportInline(w http.ResponseWriter, r *http.Request) {
	selection, err := selectionParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tok, ok := h.decodeToken(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Export(r.Context(), tok, selection)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeDocument(w, r, doc)
}

func (h *Handler) handleExportBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[BatchRequest](w, r, h.logger)
	if !ok {
		return
	}

	// Resolving ids reads the store, so the size limit applies first.
	if limit := h.service.MaxBatchSize(); len(req.Items) > limit {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("batch of %d exceeds the limit of %d", len(req.Items), limit)))
		return
	}

	results := make([]BatchItemResult, len(req.Items))
	var (
		reqs  []models.Request
		index []int
	)
	for i, item := range req.Items {
		results[i].ID = item.ID
		selection, err := parseSelection(item.Type)
		if err == nil {
			var tok certmodels.Token
			if tok, err = h.service.Get(ctx, item.ID); err == nil {
				reqs = append(reqs, models.Request{Token: tok, Selection: selection})
				index = append(index, i)
				continue
			}
		}
		setItemError(&results[i], err)
	}

	if len(reqs) > 0 {
		exported, err := h.service.ExportBatch(ctx, reqs)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		for j, res := range exported {
			out := &results[index[j]]
			if res.Err != nil {
				setItemError(out, res.Err)
				continue
			}
			out.Pages = res.Document.Pages
			out.Document = res.Document.Data
		}
	}
	httputil.WriteJSON(w, http.StatusOK, BatchResponse{Results: results})
}

// decodeToken reads a token from a CBOR body with the QR payload in a
// header, or from a JSON CertificateRequest.
func (h *Handler) decodeToken(w http.ResponseWriter, r *http.Request) (certmodels.Token, bool) {
	ctx := r.Context()
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == contentTypeCBOR {
		body, err := io.ReadAll(io.LimitReader(r.Body, httputil.MaxBodyBytes))
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "failed to read body"))
			return certmodels.Token{}, false
		}
		tok, err := codec.DecodeCBOR(body)
		if err != nil {
			h.logger.WarnContext(ctx, "invalid cbor certificate", "error", err)
			httputil.WriteError(w, err)
			return certmodels.Token{}, false
		}
		tok.QRPayload = r.Header.Get(headerQRPayload)
		return tok, true
	}

	req, ok := httputil.DecodeJSON[CertificateRequest](w, r, h.logger)
	if !ok {
		return certmodels.Token{}, false
	}

	var (
		tok certmodels.Token
		err error
	)
	if len(req.Certificate) > 0 {
		tok, err = codec.DecodeJSON(req.Certificate)
		tok.QRPayload = req.QRPayload
	} else {
		tok, err = codec.DecodeQR(req.QRPayload)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "invalid certificate", "error", err)
		httputil.WriteError(w, err)
		return certmodels.Token{}, false
	}
	if req.Template != nil {
		tok.Certificate.Template = &certmodels.Template{
			Name: req.Template.Name,
			Type: certmodels.TemplateType(req.Template.Type),
			Data: req.Template.Data,
		}
	}
	return tok, true
}

func (h *Handler) writeDocument(w http.ResponseWriter, r *http.Request, doc *models.Document) {
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="certificate-%s.pdf"`, doc.Type))
	w.Header().Set("X-Document-Pages", strconv.Itoa(doc.Pages))
	if doc.Cached {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write document", "error", err)
	}
}

// pathID unescapes the id segment; UVCIs contain slashes and arrive
// percent-encoded.
func pathID(r *http.Request) (string, error) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		return "", dErrors.New(dErrors.CodeValidation, "invalid certificate id")
	}
	return id, nil
}

func selectionParam(r *http.Request) (certmodels.TemplateType, error) {
	return parseSelection(r.URL.Query().Get("type"))
}

// parseSelection accepts an empty value, meaning the template's own type.
func parseSelection(s string) (certmodels.TemplateType, error) {
	if s == "" {
		return "", nil
	}
	t, err := certmodels.ParseTemplateType(s)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	return t, nil
}

func setItemError(out *BatchItemResult, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		out.Error = string(dErrors.CodeInternal)
		return
	}
	out.Error = string(de.Code)
	if dErrors.ToHTTPStatus(de.Code) < http.StatusInternalServerError {
		out.Description = de.Message
	}
}

func entryTypes(c certmodels.Certificate) []string {
	types := []string{}
	for _, t := range c.EntryTypes() {
		types = append(types, string(t))
	}
	return types
}
