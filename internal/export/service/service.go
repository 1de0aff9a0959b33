// Package service runs the export pipeline: precheck, cache lookup, template
// fill, and asynchronous rendering of a certificate into a PDF document.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"certexport/internal/audit"
	certmodels "certexport/internal/certificate/models"
	"certexport/internal/export/cache"
	"certexport/internal/export/models"
	"certexport/internal/export/render"
	dErrors "certexport/pkg/domain-errors"
	"certexport/pkg/platform/sentinel"
)

const (
	DefaultBatchConcurrency = 4
	DefaultMaxBatchSize     = 50
)

const tracerName = "certexport/internal/export/service"

// Filler substitutes certificate values into a template.
type Filler interface {
	Fill(ctx context.Context, tok certmodels.Token, selection certmodels.TemplateType) (models.FilledTemplate, error)
}

// Renderer starts asynchronous renders.
type Renderer interface {
	Start(ctx context.Context, filled models.FilledTemplate) *render.Job
}

// CertificateStore persists imported tokens.
type CertificateStore interface {
	Save(ctx context.Context, tok certmodels.Token) error
	FindByID(ctx context.Context, id string) (certmodels.Token, error)
}

// DocumentCache caches rendered documents by cache.Key.
type DocumentCache interface {
	Get(ctx context.Context, key string) (*models.Document, bool, error)
	Set(ctx context.Context, key string, doc *models.Document) error
}

// AuditPublisher records export events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Recorder receives pipeline metrics.
type Recorder interface {
	IncExport(templateType, outcome string)
	ObserveExport(templateType string, start time.Time)
	IncCacheLookup(result string)
}

// Service exports certificates. It is safe for concurrent use: every export
// gets its own fill output and rendering session.
type Service struct {
	filler           Filler
	renderer         Renderer
	store            CertificateStore
	cache            DocumentCache
	auditor          AuditPublisher
	metrics          Recorder
	logger           *slog.Logger
	tracer           trace.Tracer
	batchConcurrency int
	maxBatchSize     int
	now              func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithStore enables Import, Get and ExportByID.
func WithStore(store CertificateStore) Option {
	return func(s *Service) { s.store = store }
}

// WithCache sets the document cache. nil disables caching.
func WithCache(c DocumentCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithAuditPublisher emits an audit event for every import and export.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

func WithMetrics(m Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithBatchLimits bounds ExportBatch: concurrency is the number of exports
// in flight, maxSize the number of requests accepted per call.
func WithBatchLimits(concurrency, maxSize int) Option {
	return func(s *Service) {
		if concurrency > 0 {
			s.batchConcurrency = concurrency
		}
		if maxSize > 0 {
			s.maxBatchSize = maxSize
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service over a filler and renderer.
func New(filler Filler, renderer Renderer, opts ...Option) *Service {
	s := &Service{
		filler:           filler,
		renderer:         renderer,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:           otel.Tracer(tracerName),
		batchConcurrency: DefaultBatchConcurrency,
		maxBatchSize:     DefaultMaxBatchSize,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Import stores a token so it can later be exported by ID.
func (s *Service) Import(ctx context.Context, tok certmodels.Token) (string, error) {
	if s.store == nil {
		return "", dErrors.New(dErrors.CodeInternal, "certificate store not configured")
	}
	id := tok.ID()
	if id == "" {
		return "", dErrors.New(dErrors.CodeValidation, "certificate has no entries")
	}
	if tok.QRPayload == "" {
		return "", dErrors.New(dErrors.CodeValidation, "qr payload is required")
	}
	if tpl := tok.Certificate.Template; tpl != nil {
		if _, err := certmodels.ParseTemplateType(string(tpl.Type)); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeValidation, "invalid template type")
		}
	}
	if err := s.store.Save(ctx, tok); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to save certificate")
	}

	s.logger.InfoContext(ctx, "certificate imported",
		"certificate_id", id,
		"exportable", tok.Certificate.CanExport(),
	)
	s.emit(ctx, audit.Event{Action: audit.ActionCertificateImported, CertificateID: id})
	return id, nil
}

// Get loads a stored token.
func (s *Service) Get(ctx context.Context, id string) (certmodels.Token, error) {
	if s.store == nil {
		return certmodels.Token{}, dErrors.New(dErrors.CodeInternal, "certificate store not configured")
	}
	tok, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return certmodels.Token{}, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return certmodels.Token{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	return tok, nil
}

// Export renders a token synchronously.
func (s *Service) Export(ctx context.Context, tok certmodels.Token, selection certmodels.TemplateType) (*models.Document, error) {
	job, err := s.Start(ctx, tok, selection)
	if err != nil {
		return nil, err
	}
	return job.Wait(ctx)
}

// ExportByID loads a stored token and exports it.
func (s *Service) ExportByID(ctx context.Context, id string, selection certmodels.TemplateType) (*models.Document, error) {
	tok, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Export(ctx, tok, selection)
}

// Start validates and fills synchronously, then hands rendering to a job.
// Errors up to and including the fill are returned directly; render errors
// arrive through the job. An empty selection uses the template's own type.
func (s *Service) Start(ctx context.Context, tok certmodels.Token, selection certmodels.TemplateType) (*render.Job, error) {
	start := s.now()
	id := tok.ID()

	ctx, span := s.tracer.Start(ctx, "export.start", trace.WithAttributes(
		attribute.String("certificate.id", id),
	))
	defer span.End()

	if !tok.Certificate.CanExport() {
		err := dErrors.New(dErrors.CodeNoTemplate, "certificate has no template")
		s.fail(ctx, span, id, selection, start, err)
		return nil, err
	}
	if selection == "" {
		selection = tok.Certificate.Template.Type
	}
	span.SetAttributes(attribute.String("template.type", string(selection)))

	key := cache.Key(tok.Certificate.Template.Data, tok.QRPayload, selection)
	if doc := s.lookup(ctx, key); doc != nil {
		s.succeed(ctx, id, selection, start, doc)
		return render.Completed(ctx, doc), nil
	}

	filled, err := s.fill(ctx, tok, selection)
	if err != nil {
		s.fail(ctx, span, id, selection, start, err)
		return nil, err
	}

	return s.renderer.Start(ctx, filled).Then(func(res render.Result) render.Result {
		if res.Err != nil {
			s.fail(ctx, nil, id, selection, start, res.Err)
			return res
		}
		res.Document.CertificateID = id
		s.remember(ctx, key, res.Document)
		s.succeed(ctx, id, selection, start, res.Document)
		return res
	}), nil
}

func (s *Service) fill(ctx context.Context, tok certmodels.Token, selection certmodels.TemplateType) (models.FilledTemplate, error) {
	ctx, span := s.tracer.Start(ctx, "export.fill")
	defer span.End()

	filled, err := s.filler.Fill(ctx, tok, selection)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return models.FilledTemplate{}, err
	}
	span.SetAttributes(attribute.Int("template.leftovers", len(filled.Leftovers)))
	return filled, nil
}

func (s *Service) lookup(ctx context.Context, key string) *models.Document {
	if s.cache == nil {
		return nil
	}
	doc, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.countLookup("error")
		s.logger.WarnContext(ctx, "document cache lookup failed", "error", err)
		return nil
	case !ok:
		s.countLookup("miss")
		return nil
	}
	s.countLookup("hit")
	doc.Cached = true
	return doc
}

func (s *Service) remember(ctx context.Context, key string, doc *models.Document) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, doc); err != nil {
		s.logger.WarnContext(ctx, "document cache store failed",
			"certificate_id", doc.CertificateID,
			"error", err,
		)
	}
}

func (s *Service) countLookup(result string) {
	if s.metrics != nil {
		s.metrics.IncCacheLookup(result)
	}
}

func (s *Service) succeed(ctx context.Context, id string, selection certmodels.TemplateType, start time.Time, doc *models.Document) {
	elapsed := s.now().Sub(start)
	if s.metrics != nil {
		s.metrics.IncExport(string(selection), "success")
		s.metrics.ObserveExport(string(selection), start)
	}
	s.logger.InfoContext(ctx, "certificate exported",
		"certificate_id", id,
		"template_type", string(selection),
		"pages", doc.Pages,
		"cached", doc.Cached,
		"duration_ms", elapsed.Milliseconds(),
	)
	s.emit(ctx, audit.Event{
		Action:        audit.ActionCertificateExported,
		CertificateID: id,
		TemplateType:  string(selection),
		Pages:         doc.Pages,
		Cached:        doc.Cached,
		DurationMS:    elapsed.Milliseconds(),
	})
}

func (s *Service) fail(ctx context.Context, span trace.Span, id string, selection certmodels.TemplateType, start time.Time, err error) {
	code := dErrors.CodeOf(err)
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
	}
	if s.metrics != nil {
		s.metrics.IncExport(string(selection), "failure")
	}
	s.logger.WarnContext(ctx, "certificate export failed",
		"certificate_id", id,
		"template_type", string(selection),
		"error_code", string(code),
		"error", err,
	)
	s.emit(ctx, audit.Event{
		Action:        audit.ActionCertificateExportFailed,
		CertificateID: id,
		TemplateType:  string(selection),
		ErrorCode:     string(code),
		DurationMS:    s.now().Sub(start).Milliseconds(),
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	// Audit failures are logged by the publisher and never fail an export.
	_ = s.auditor.Emit(ctx, event)
}

// MaxBatchSize is the largest batch ExportBatch accepts.
func (s *Service) MaxBatchSize() int { return s.maxBatchSize }

// ExportBatch exports every request concurrently, bounded by the batch
// concurrency. Each result carries its own document or error, in request
// order. The returned error is non-nil only when ctx ends before the batch
// completes or the batch is too large.
func (s *Service) ExportBatch(ctx context.Context, reqs []models.Request) ([]models.BatchResult, error) {
	if len(reqs) > s.maxBatchSize {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("batch of %d exceeds the limit of %d", len(reqs), s.maxBatchSize))
	}

	results := make([]models.BatchResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)
	for i, req := range reqs {
		results[i].CertificateID = req.Token.ID()
		if ctx.Err() != nil {
			results[i].Err = ctx.Err()
			continue
		}
		g.Go(func() error {
			doc, err := s.Export(ctx, req.Token, req.Selection)
			results[i].Document = doc
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	s.logger.InfoContext(ctx, "batch export finished", "requests", len(reqs))
	return results, ctx.Err()
}
