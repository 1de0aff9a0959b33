// Package filler substitutes certificate values into SVG templates.
//
// Templates carry literal tokens of the form $name in text and attribute
// positions. Substitution is a single left-to-right pass, so a value that
// happens to contain a token is never expanded again.
package filler

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	certmodels "certexport/internal/certificate/models"
	"certexport/internal/export/format"
	"certexport/internal/export/models"
	"certexport/internal/export/qr"
	dErrors "certexport/pkg/domain-errors"
)

var tokenPattern = regexp.MustCompile(`\$[a-z]+`)

// LeftoverRecorder counts templates that still contain unknown tokens.
type LeftoverRecorder interface {
	IncTemplateLeftover(templateType string)
}

// Filler substitutes certificate values into a template. It holds no
// per-call state and is safe for concurrent use.
type Filler struct {
	formatter *format.Formatter
	qrSize    qr.Size
	strict    bool
	logger    *slog.Logger
	metrics   LeftoverRecorder
}

// Option configures a Filler.
type Option func(*Filler)

// WithFormatter replaces the default format.New() formatter.
func WithFormatter(f *format.Formatter) Option {
	return func(fl *Filler) {
		fl.formatter = f
	}
}

// WithQRSize overrides qr.PrintSize.
func WithQRSize(size qr.Size) Option {
	return func(fl *Filler) {
		fl.qrSize = size
	}
}

// WithStrict makes leftover tokens a CodeTemplateMismatch failure instead
// of a reported warning.
func WithStrict(strict bool) Option {
	return func(fl *Filler) {
		fl.strict = strict
	}
}

// WithLogger sets the logger for leftover-token and QR warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(fl *Filler) {
		fl.logger = logger
	}
}

// WithMetrics counts templates filled with leftover tokens.
func WithMetrics(m LeftoverRecorder) Option {
	return func(fl *Filler) {
		fl.metrics = m
	}
}

// New creates a Filler. Leftover tokens are reported, not fatal, unless
// WithStrict is set.
func New(opts ...Option) *Filler {
	fl := &Filler{
		qrSize: qr.PrintSize,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(fl)
	}
	if fl.formatter == nil {
		fl.formatter = format.New()
	}
	return fl
}

// Fill renders the template bundled with the token's certificate.
func (fl *Filler) Fill(ctx context.Context, tok certmodels.Token, selection certmodels.TemplateType) (models.FilledTemplate, error) {
	if !tok.Certificate.CanExport() {
		return models.FilledTemplate{}, dErrors.New(dErrors.CodeNoTemplate, "certificate has no template")
	}
	return fl.FillTemplate(ctx, tok.Certificate.Template.Data, tok, selection)
}

// FillTemplate substitutes the token's values into tmpl for the given
// template type.
func (fl *Filler) FillTemplate(ctx context.Context, tmpl []byte, tok certmodels.Token, selection certmodels.TemplateType) (models.FilledTemplate, error) {
	if len(tmpl) == 0 {
		return models.FilledTemplate{}, dErrors.New(dErrors.CodeNoTemplate, "template is empty")
	}

	values, err := fl.values(ctx, tok, selection)
	if err != nil {
		return models.FilledTemplate{}, err
	}

	leftovers := map[string]struct{}{}
	out := tokenPattern.ReplaceAllFunc(tmpl, func(token []byte) []byte {
		if v, ok := values[string(token)]; ok {
			return []byte(v)
		}
		leftovers[string(token)] = struct{}{}
		return token
	})

	filled := models.FilledTemplate{Type: selection, Markup: out}
	if len(leftovers) == 0 {
		return filled, nil
	}

	filled.Leftovers = make([]string, 0, len(leftovers))
	for t := range leftovers {
		filled.Leftovers = append(filled.Leftovers, t)
	}
	sort.Strings(filled.Leftovers)

	fl.logger.WarnContext(ctx, "template placeholders left unfilled",
		"template_type", string(selection),
		"tokens", filled.Leftovers,
	)
	if fl.metrics != nil {
		fl.metrics.IncTemplateLeftover(string(selection))
	}
	if fl.strict {
		return models.FilledTemplate{}, dErrors.New(dErrors.CodeTemplateMismatch,
			"template uses unknown placeholders: "+strings.Join(filled.Leftovers, ", "))
	}
	return filled, nil
}

func (fl *Filler) values(ctx context.Context, tok certmodels.Token, selection certmodels.TemplateType) (map[string]string, error) {
	cert := tok.Certificate
	f := fl.formatter

	values := map[string]string{
		"$nam": format.FullName(cert.Name),
		"$dob": format.Optional(cert.DateOfBirth),
		"$ci":  format.Optional(format.StripUVCIPrefix(cert.UVCI())),
		"$qr":  fl.qrValue(ctx, tok.QRPayload),
	}

	switch selection {
	case certmodels.TemplateTypeVaccination:
		v, ok := cert.LatestVaccination()
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidTemplate, "certificate has no vaccination entry")
		}
		values["$tg"] = f.DiseaseAgent(v.TargetDisease)
		values["$vp"] = f.VaccineProphylaxis(v.VaccineProphylaxis)
		values["$mp"] = f.MedicinalProduct(v.MedicinalProduct)
		values["$ma"] = f.Manufacturer(v.MarketingAuthorization)
		values["$dn"] = format.Count(v.DoseNumber)
		values["$sd"] = format.Count(v.TotalSeriesOfDoses)
		values["$dt"] = f.Date(v.Date)
		values["$co"] = f.Country(v.Country)
		values["$is"] = format.Optional(v.Issuer)
	case certmodels.TemplateTypeTest:
		t, ok := cert.LatestTest()
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidTemplate, "certificate has no test entry")
		}
		values["$tg"] = f.DiseaseAgent(t.TargetDisease)
		values["$tt"] = f.TestType(t.TestType)
		values["$nm"] = format.Optional(t.TestName)
		values["$ma"] = f.TestDevice(t.Manufacturer)
		values["$sc"] = f.Date(t.SampleCollection)
		values["$tr"] = f.TestResult(t.Result)
		values["$tc"] = format.Optional(t.TestingCentre)
		values["$co"] = format.Optional(t.Country)
		values["$is"] = format.Optional(t.Issuer)
	case certmodels.TemplateTypeRecovery:
		r, ok := cert.LatestRecovery()
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidTemplate, "certificate has no recovery entry")
		}
		values["$tg"] = f.DiseaseAgent(r.TargetDisease)
		values["$fr"] = f.Date(r.FirstPositiveTest)
		values["$df"] = f.Date(r.ValidFrom)
		values["$du"] = f.Date(r.ValidUntil)
		values["$co"] = format.Optional(r.Country)
		values["$is"] = format.Optional(r.Issuer)
	default:
		return nil, dErrors.New(dErrors.CodeInvalidTemplate, "unknown template type "+string(selection))
	}
	return values, nil
}

// qrValue never fails the fill: an unencodable payload prints the
// placeholder where the image would be.
func (fl *Filler) qrValue(ctx context.Context, payload string) string {
	png, err := qr.EncodePNG(payload, fl.qrSize)
	if err != nil {
		fl.logger.WarnContext(ctx, "qr encoding failed, using placeholder", "error", err)
		return format.Placeholder
	}
	return base64.StdEncoding.EncodeToString(png)
}
