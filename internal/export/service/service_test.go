package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certexport/internal/audit"
	"certexport/internal/certificate/certtest"
	certmodels "certexport/internal/certificate/models"
	"certexport/internal/certificate/store"
	"certexport/internal/export/cache"
	"certexport/internal/export/filler"
	"certexport/internal/export/models"
	"certexport/internal/export/qr"
	"certexport/internal/export/render"
	"certexport/internal/export/render/mocks"
	"certexport/internal/export/service"
	dErrors "certexport/pkg/domain-errors"
)

//go:generate mockgen -source=../render/render.go -destination=../render/mocks/mocks.go -package=mocks Backend,Recorder

type fakeMetrics struct {
	mu      sync.Mutex
	exports map[string]int
	lookups map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{exports: map[string]int{}, lookups: map[string]int{}}
}

func (m *fakeMetrics) IncExport(templateType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[templateType+"/"+outcome]++
}

func (m *fakeMetrics) ObserveExport(string, time.Time) {}

func (m *fakeMetrics) IncCacheLookup(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[result]++
}

func (m *fakeMetrics) export(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exports[key]
}

func (m *fakeMetrics) lookup(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups[key]
}

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	backend   *mocks.MockBackend
	store     *store.InMemory
	audits    *audit.InMemoryStore
	metrics   *fakeMetrics
	documents *cache.MemoryCache
	service   *service.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	ctrl := gomock.NewController(s.T())
	s.backend = mocks.NewMockBackend(ctrl)
	s.store = store.NewInMemory()
	s.audits = audit.NewInMemoryStore()
	s.metrics = newFakeMetrics()
	s.documents = cache.NewMemory()
	s.service = s.newService()
}

func (s *ServiceSuite) newService(opts ...service.Option) *service.Service {
	fl := filler.New(filler.WithQRSize(qr.Size{Width: 200, Height: 200}))
	r := render.New(render.WithBackend(s.backend), render.WithTimeout(time.Second))
	return service.New(fl, r, append([]service.Option{
		service.WithStore(s.store),
		service.WithCache(s.documents),
		service.WithAuditPublisher(audit.NewPublisher(s.audits)),
		service.WithMetrics(s.metrics),
	}, opts...)...)
}

// echoPDF returns the filled markup as the document body so tests can see
// exactly what reached the renderer.
func echoPDF(_ context.Context, markup []byte) (render.Output, error) {
	return render.Output{Data: append([]byte("%PDF-"), markup...), Pages: 1}, nil
}

func (s *ServiceSuite) events(certificateID string) []audit.Event {
	events, err := s.audits.ListByCertificate(s.ctx, certificateID)
	s.Require().NoError(err)
	return events
}

func (s *ServiceSuite) TestNoTemplateNeverRenders() {
	tok := certtest.Vaccinated()
	tok.Certificate.Template = nil
	// No EXPECT on the backend: any Render call fails the test.

	doc, err := s.service.Export(s.ctx, tok, certmodels.TemplateTypeVaccination)
	s.Nil(doc)
	s.True(dErrors.HasCode(err, dErrors.CodeNoTemplate))

	events := s.events(tok.ID())
	s.Require().Len(events, 1)
	s.Equal(audit.ActionCertificateExportFailed, events[0].Action)
	s.Equal(string(dErrors.CodeNoTemplate), events[0].ErrorCode)
	s.Equal(1, s.metrics.export("vaccination/failure"))
}

func (s *ServiceSuite) TestExportFillsAndRenders() {
	tok := certtest.Vaccinated()
	s.backend.EXPECT().Render(gomock.Any(), gomock.Any()).DoAndReturn(echoPDF).Times(1)

	doc, err := s.service.Export(s.ctx, tok, certmodels.TemplateTypeVaccination)
	s.Require().NoError(err)
	s.Equal(tok.ID(), doc.CertificateID)
	s.Equal(models.ContentTypePDF, doc.ContentType)
	s.Equal(1, doc.Pages)
	s.False(doc.Cached)
	s.Contains(string(doc.Data), "01DE/A/1")
	s.NotContains(string(doc.Data), "$nam")

	events := s.events(tok.ID())
	s.Require().Len(events, 1)
	s.Equal(audit.ActionCertificateExported, events[0].Action)
	s.Equal("vaccination", events[0].TemplateType)
	s.Equal(1, s.metrics.export("vaccination/success"))
	s.Equal(1, s.metrics.lookup("miss"))
}

func (s *ServiceSuite) TestEmptySelectionUsesTemplateType() {
	tok := certtest.Recovered()
	s.backend.EXPECT().Render(gomock.Any(), gomock.Any()).DoAndReturn(echoPDF)

	doc, err := s.service.Export(s.ctx, tok, "")
	s.Require().NoError(err)
	s.Equal(certmodels.TemplateTypeRecovery, doc.Type)
}

func (s *ServiceSuite) TestSecondExportIsServedFromCache() {
	tok := certtest.Tested()
	s.backend.EXPECT().Render(gomock.Any(), gomock.Any()).DoAndReturn(echoPDF).Times(1)

	first, err := s.service.Export(s.ctx, tok, certmodels.TemplateTypeTest)
	s.Require().NoError(err)
	second, err := s.service.Export(s.ctx, tok, certmodels.TemplateTypeTest)
	s.Require().NoError(err)

	s.True(second.Cached)
	s.Equal(first.ID, second.ID)
	s.Equal(first.Data, second.Data)
	s.Equal(1, s.metrics.lookup("hit"))
	s.Len(s.events(tok.ID()), 2)
}

func (s *ServiceSuite) TestSelectionWithoutEntries() {
	doc, err := s.service.Export(s.ctx, certtest.Vaccinated(), certmodels.TemplateTypeTest)
	s.Nil(doc)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTemplate))
}

func (s *ServiceSuite) TestRenderFailureIsReported() {
	tok := certtest.Tested()
	s.backend.EXPECT().Render(gomock.Any(), gomock.Any()).Return(render.Output{}, errors.New("font missing"))

	doc, err := s.service.Export(s.ctx, tok, certmodels.TemplateTypeTest)
	s.Nil(doc)
	s.True(dErrors.HasCode(err, dErrors.CodeRender))

	events := s.events(tok.ID())
	s.Require().Len(events, 1)
	s.Equal(string(dErrors.CodeRender), events[0].ErrorCode)
	s.Equal(0, s.documents.Len(), "failures are never cached")
}

func (s *ServiceSuite) TestStartDeliversThroughJob() {
	tok := certtest.Vaccinated()
	s.backend.EXPECT().Render(gomock.Any(), gomock.Any()).DoAndReturn(echoPDF)

	job, err := s.service.Start(s.ctx, tok, certmodels.TemplateTypeVaccination)
	s.Require().NoError(err)

	select {
	case res, ok := <-job.Done():
		s.Require().True(ok)
		s.Require().NoError(res.Err)
		s.Equal(tok.ID(), res.Document.CertificateID)
	case <-time.After(2 * time.Second):
		s.Fail("job did not complete")
	}
}

func (s *ServiceSuite) TestCancelledStartDeliversNothing() {
	tok := certtest.Vaccinated()
	released := make(chan struct{})
	s.backend.EXPECT().Render(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ []byte) (render.Output, error) {
			<-ctx.Done()
			close(released)
			return render.Output{}, ctx.Err()
		})

	job, err := s.service.Start(s.ctx, tok, certmodels.TemplateTypeVaccination)
	s.Require().NoError(err)
	job.Cancel()

	_, ok := <-job.Done()
	s.False(ok)
	<-released
	s.Empty(s.events(tok.ID()))
	s.Equal(0, s.documents.Len())
}

func (s *ServiceSuite) TestImportAndExportByID() {
	tok := certtest.Tested()

	_, err := s.service.ExportByID(s.ctx, tok.ID(), certmodels.TemplateTypeTest)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	id, err := s.service.Import(s.ctx, tok)
	s.Require().NoError(err)
	s.Equal(tok.ID(), id)

	s.backend.EXPECT().Render(gomock.Any(), gomock.Any()).DoAndReturn(echoPDF)
	doc, err := s.service.ExportByID(s.ctx, id, certmodels.TemplateTypeTest)
	s.Require().NoError(err)
	s.Equal(id, doc.CertificateID)

	actions := []audit.Action{}
	for _, e := range s.events(id) {
		actions = append(actions, e.Action)
	}
	s.Equal([]audit.Action{audit.ActionCertificateImported, audit.ActionCertificateExported}, actions)
}

func (s *ServiceSuite) TestImportValidation() {
	s.Run("no entries", func() {
		_, err := s.service.Import(s.ctx, certmodels.Token{QRPayload: "HC1:x"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("no qr payload", func() {
		tok := certtest.Tested()
		tok.QRPayload = ""
		_, err := s.service.Import(s.ctx, tok)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("unknown template type", func() {
		tok := certtest.Tested()
		tok.Certificate.Template.Type = "passport"
		_, err := s.service.Import(s.ctx, tok)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestConcurrentExportsGetTheirOwnDocuments() {
	s.backend.EXPECT().Render(gomock.Any(), gomock.Any()).DoAndReturn(echoPDF).AnyTimes()
	svc := s.newService(service.WithCache(nil))

	tokens := []certmodels.Token{certtest.Vaccinated(), certtest.Tested(), certtest.Recovered()}
	want := []string{"01DE/A/1", "01DE/T/77", "01DE/R/5"}

	const rounds = 8
	var wg sync.WaitGroup
	errs := make(chan error, rounds*len(tokens))
	for r := 0; r < rounds; r++ {
		for i, tok := range tokens {
			wg.Add(1)
			go func() {
				defer wg.Done()
				doc, err := svc.Export(s.ctx, tok, "")
				if err != nil {
					errs <- err
					return
				}
				if doc.CertificateID != tok.ID() || !bytes.Contains(doc.Data, []byte(want[i])) {
					errs <- fmt.Errorf("export %d got a foreign document %s", i, doc.CertificateID)
					return
				}
				for j, other := range want {
					if j != i && bytes.Contains(doc.Data, []byte(other)) {
						errs <- fmt.Errorf("export %d leaked %s", i, other)
						return
					}
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Fail(err.Error())
	}
}

func (s *ServiceSuite) TestExportBatch() {
	s.backend.EXPECT().Render(gomock.Any(), gomock.Any()).DoAndReturn(echoPDF).Times(2)
	svc := s.newService(service.WithBatchLimits(2, 3))

	noTemplate := certtest.Recovered()
	noTemplate.Certificate.Template = nil
	reqs := []models.Request{
		{Token: certtest.Vaccinated(), Selection: certmodels.TemplateTypeVaccination},
		{Token: noTemplate, Selection: certmodels.TemplateTypeRecovery},
		{Token: certtest.Tested(), Selection: certmodels.TemplateTypeTest},
	}

	results, err := svc.ExportBatch(s.ctx, reqs)
	s.Require().NoError(err)
	s.Require().Len(results, 3)

	s.NoError(results[0].Err)
	s.Equal(reqs[0].Token.ID(), results[0].CertificateID)
	s.True(strings.HasPrefix(string(results[0].Document.Data), "%PDF-"))
	s.True(dErrors.HasCode(results[1].Err, dErrors.CodeNoTemplate))
	s.Nil(results[1].Document)
	s.NoError(results[2].Err)
	s.Equal(reqs[2].Token.ID(), results[2].Document.CertificateID)

	s.Run("rejects oversized batches", func() {
		s.Equal(3, svc.MaxBatchSize())
		_, err := svc.ExportBatch(s.ctx, append(reqs, reqs[0]))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
