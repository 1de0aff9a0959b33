package render_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certexport/internal/certificate/certtest"
	certmodels "certexport/internal/certificate/models"
	"certexport/internal/export/filler"
	"certexport/internal/export/models"
	"certexport/internal/export/qr"
	"certexport/internal/export/render"
	dErrors "certexport/pkg/domain-errors"
)

type backendFunc func(ctx context.Context, markup []byte) (render.Output, error)

func (f backendFunc) Render(ctx context.Context, markup []byte) (render.Output, error) {
	return f(ctx, markup)
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) ObserveRender(outcome string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *outcomeRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

// textOp is the content stream operator fpdf writes for s in an embedded
// UTF-8 font, where each character is a UTF-16BE code unit.
func textOp(s string) string {
	return "(" + utf16BE(s) + ") Tj"
}

func utf16BE(s string) string {
	var b []byte
	for _, u := range utf16.Encode([]rune(s)) {
		b = append(b, byte(u>>8), byte(u))
	}
	return string(b)
}

func markup(body string) models.FilledTemplate {
	return models.FilledTemplate{
		Type:   certmodels.TemplateTypeVaccination,
		Markup: []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 595 842">` + body + `</svg>`),
	}
}

func plainRenderer(opts ...render.Option) *render.Renderer {
	return render.New(append([]render.Option{
		render.WithBackend(render.NewSVGBackend(render.WithCompression(false))),
	}, opts...)...)
}

type RendererSuite struct {
	suite.Suite
	ctx context.Context
}

func TestRendererSuite(t *testing.T) {
	suite.Run(t, new(RendererSuite))
}

func (s *RendererSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *RendererSuite) TestRendersPDF() {
	metrics := &outcomeRecorder{}
	r := plainRenderer(render.WithMetrics(metrics))

	job := r.Start(s.ctx, markup(`<rect x="0" y="0" width="595" height="80" fill="#0d5aa7"/><text x="40" y="50" font-size="22">Hello certificate</text>`))
	res, ok := <-job.Done()
	s.Require().True(ok)
	s.Require().NoError(res.Err)

	doc := res.Document
	s.Require().NotNil(doc)
	s.True(bytes.HasPrefix(doc.Data, []byte("%PDF-")))
	s.Contains(string(doc.Data), textOp("Hello certificate"))
	s.Equal(1, doc.Pages)
	s.Equal(models.ContentTypePDF, doc.ContentType)
	s.Equal(certmodels.TemplateTypeVaccination, doc.Type)
	s.Equal(job.ID, doc.ID)
	s.Equal([]string{render.OutcomeSuccess}, metrics.get())

	_, ok = <-job.Done()
	s.False(ok, "exactly one result is delivered")
}

func (s *RendererSuite) TestFilledCertificate() {
	fl := filler.New(filler.WithQRSize(qr.Size{Width: 200, Height: 200}))
	filled, err := fl.Fill(s.ctx, certtest.Vaccinated(), certmodels.TemplateTypeVaccination)
	s.Require().NoError(err)

	doc, err := plainRenderer().Render(s.ctx, filled)
	s.Require().NoError(err)
	s.Contains(string(doc.Data), "/Subtype /Image")
	s.Contains(string(doc.Data), textOp("01DE/A/1"))
	s.Equal(1, doc.Pages)
}

func (s *RendererSuite) TestPaginatesTallDrawings() {
	tall := models.FilledTemplate{Markup: []byte(`<svg viewBox="0 0 100 300"><text x="10" y="20">top</text><text x="10" y="290">bottom</text></svg>`)}

	doc, err := plainRenderer().Render(s.ctx, tall)
	s.Require().NoError(err)
	s.Equal(3, doc.Pages)
}

func (s *RendererSuite) TestA4DesignsFitOnePage() {
	cases := map[string]struct {
		viewBox string
		pages   int
	}{
		"points":            {"0 0 595 842", 1},
		"exact points":      {"0 0 595.28 841.89", 1},
		"millimetres":       {"0 0 210 297", 1},
		"two pages":         {"0 0 595 1684", 2},
		"just over a page":  {"0 0 595 846", 2},
		"shorter than page": {"0 0 595 400", 1},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			tmpl := models.FilledTemplate{Markup: []byte(`<svg viewBox="` + tc.viewBox + `"><text x="10" y="20">x</text></svg>`)}
			doc, err := plainRenderer().Render(s.ctx, tmpl)
			s.Require().NoError(err)
			s.Equal(tc.pages, doc.Pages)
		})
	}
}

func (s *RendererSuite) TestNonLatinNamesKeepTheirGlyphs() {
	for _, name := range []string{"Γιώργος Παπαδόπουλος", "Иван Петров", "Åsa Øberg"} {
		s.Run(name, func() {
			doc, err := plainRenderer().Render(s.ctx, markup(`<text x="40" y="50" font-weight="bold">`+name+`</text>`))
			s.Require().NoError(err)
			out := string(doc.Data)
			s.Contains(out, textOp(name))
			s.Contains(out, "/FontFile2")
			s.NotContains(out, "(....")
		})
	}
}

func (s *RendererSuite) TestScriptsAndForeignContentAreDropped() {
	doc, err := plainRenderer().Render(s.ctx, markup(
		`<script>document.write("injected")</script>`+
			`<foreignObject><div>foreign</div></foreignObject>`+
			`<text x="10" y="10">visible</text>`,
	))
	s.Require().NoError(err)
	out := string(doc.Data)
	s.Contains(out, textOp("visible"))
	s.NotContains(out, utf16BE("injected"))
	s.NotContains(out, utf16BE("foreign"))
}

func (s *RendererSuite) TestInvalidMarkupFails() {
	for name, body := range map[string]string{
		"not svg":   `<html><body>nope</body></html>`,
		"no size":   `<svg><text>x</text></svg>`,
		"truncated": `<svg viewBox="0 0 10 10"><rect`,
		"empty":     ``,
	} {
		s.Run(name, func() {
			_, err := plainRenderer().Render(s.ctx, models.FilledTemplate{Markup: []byte(body)})
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeRender), err.Error())
		})
	}
}

func (s *RendererSuite) TestBackendFailures() {
	cases := map[string]backendFunc{
		"error": func(context.Context, []byte) (render.Output, error) {
			return render.Output{}, errors.New("rasterizer exploded")
		},
		"panic": func(context.Context, []byte) (render.Output, error) {
			panic("boom")
		},
		"empty output": func(context.Context, []byte) (render.Output, error) {
			return render.Output{}, nil
		},
	}
	for name, backend := range cases {
		s.Run(name, func() {
			metrics := &outcomeRecorder{}
			r := render.New(render.WithBackend(backend), render.WithMetrics(metrics))
			doc, err := r.Render(s.ctx, markup(""))
			s.Nil(doc)
			s.True(dErrors.HasCode(err, dErrors.CodeRender))
			s.Equal([]string{render.OutcomeFailure}, metrics.get())
		})
	}
}

func blockingBackend(released chan<- struct{}) backendFunc {
	return func(ctx context.Context, _ []byte) (render.Output, error) {
		<-ctx.Done()
		close(released)
		return render.Output{}, ctx.Err()
	}
}

func (s *RendererSuite) TestTimeout() {
	released := make(chan struct{})
	r := render.New(render.WithBackend(blockingBackend(released)), render.WithTimeout(20*time.Millisecond))

	doc, err := r.Render(s.ctx, markup(""))
	s.Nil(doc)
	s.True(dErrors.HasCode(err, dErrors.CodeRenderTimeout))

	select {
	case <-released:
	case <-time.After(time.Second):
		s.Fail("backend session was not released after timeout")
	}
}

func (s *RendererSuite) TestCancel() {
	released := make(chan struct{})
	metrics := &outcomeRecorder{}
	r := render.New(render.WithBackend(blockingBackend(released)), render.WithMetrics(metrics))

	job := r.Start(s.ctx, markup(""))
	job.Cancel()

	select {
	case res, ok := <-job.Done():
		s.False(ok, "cancelled job delivered %+v", res)
	case <-time.After(time.Second):
		s.Fail("done was not closed after cancel")
	}
	<-released
	s.Equal([]string{render.OutcomeCancelled}, metrics.get())

	_, err := job.Wait(s.ctx)
	s.ErrorIs(err, context.Canceled)
	job.Cancel()
}

func (s *RendererSuite) TestParentContextCancels() {
	released := make(chan struct{})
	r := render.New(render.WithBackend(blockingBackend(released)))

	ctx, cancel := context.WithCancel(s.ctx)
	job := r.Start(ctx, markup(""))
	cancel()

	_, ok := <-job.Done()
	s.False(ok)
	<-released
}

func (s *RendererSuite) TestWaitAbandonsJob() {
	released := make(chan struct{})
	r := render.New(render.WithBackend(blockingBackend(released)))

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Millisecond)
	defer cancel()
	_, err := r.Start(s.ctx, markup("")).Wait(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
	<-released
}

func (s *RendererSuite) TestThenTransformsResult() {
	r := plainRenderer()
	job := r.Start(s.ctx, markup(`<text x="10" y="20">Hello certificate</text>`)).
		Then(func(res render.Result) render.Result {
			if res.Document != nil {
				res.Document.CertificateID = "01DE/B/2"
			}
			return res
		})

	doc, err := job.Wait(s.ctx)
	s.Require().NoError(err)
	s.Equal("01DE/B/2", doc.CertificateID)

	_, ok := <-job.Done()
	s.False(ok, "done is closed after the single delivery")
}

func (s *RendererSuite) TestThenSkipsCancelledJob() {
	released := make(chan struct{})
	r := render.New(render.WithBackend(blockingBackend(released)))

	called := make(chan struct{}, 1)
	job := r.Start(s.ctx, markup("")).Then(func(res render.Result) render.Result {
		called <- struct{}{}
		return res
	})
	job.Cancel()

	_, ok := <-job.Done()
	s.False(ok)
	<-released
	s.Empty(called)
}

func (s *RendererSuite) TestCompleted() {
	doc := &models.Document{Data: []byte("%PDF"), Pages: 1, Cached: true}
	job := render.Completed(s.ctx, doc)

	got, err := job.Wait(s.ctx)
	s.Require().NoError(err)
	s.Same(doc, got)
}

func TestConcurrentRendersAreIsolated(t *testing.T) {
	r := plainRenderer()
	const n = 16

	docs := make([]*models.Document, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			docs[i], errs[i] = r.Render(context.Background(), markup(fmt.Sprintf(`<text x="10" y="10">holder-%02d</text>`, i)))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		out := string(docs[i].Data)
		assert.Contains(t, out, textOp(fmt.Sprintf("holder-%02d", i)))
		for j := 0; j < n; j++ {
			if j != i {
				assert.NotContains(t, out, utf16BE(fmt.Sprintf("holder-%02d", j)))
			}
		}
	}
}
