//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"certexport/internal/audit"
	"certexport/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *audit.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = audit.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func (s *PostgresStoreSuite) TestAppendIsIdempotentPerID() {
	ctx := context.Background()
	event := audit.Event{
		ID:            uuid.New(),
		Timestamp:     time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC),
		Action:        audit.ActionCertificateExported,
		CertificateID: "URN:UVCI:01DE/B/2",
		TemplateType:  "vaccination",
		ClientIP:      "203.0.113.7",
		Device:        "Chrome on Linux",
		Pages:         1,
		DurationMS:    42,
	}
	s.Require().NoError(s.store.Append(ctx, event))
	s.Require().NoError(s.store.Append(ctx, event))

	events, err := s.store.ListByCertificate(ctx, event.CertificateID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(event.Action, events[0].Action)
	s.Equal(event.Pages, events[0].Pages)
	s.Equal(event.Device, events[0].Device)
	s.True(event.Timestamp.Equal(events[0].Timestamp))
}
