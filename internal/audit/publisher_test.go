package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certexport/pkg/requestcontext"
)

type failingStore struct{ err error }

func (f failingStore) Append(context.Context, Event) error { return f.err }

func TestPublisherEmitFillsDefaults(t *testing.T) {
	store := NewInMemoryStore()
	fixed := time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC)
	p := NewPublisher(store, WithClock(func() time.Time { return fixed }))

	ctx := requestcontext.WithSubject(context.Background(), "svc-printer")
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithClient(ctx, "203.0.113.7", "Firefox on Linux")

	err := p.Emit(ctx, Event{Action: ActionCertificateExported, CertificateID: "01DE/B/2"})
	require.NoError(t, err)

	events, err := store.ListByCertificate(ctx, "01DE/B/2")
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, fixed, e.Timestamp)
	assert.Equal(t, "svc-printer", e.Subject)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, "203.0.113.7", e.ClientIP)
	assert.Equal(t, "Firefox on Linux", e.Device)
}

func TestPublisherKeepsExplicitFields(t *testing.T) {
	store := NewInMemoryStore()
	p := NewPublisher(store)
	id := uuid.New()
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	ctx := requestcontext.WithSubject(context.Background(), "ignored")
	require.NoError(t, p.Emit(ctx, Event{ID: id, Timestamp: at, Subject: "explicit", Action: ActionCertificateImported}))

	events, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
	assert.Equal(t, at, events[0].Timestamp)
	assert.Equal(t, "explicit", events[0].Subject)
}

func TestPublisherReturnsSinkError(t *testing.T) {
	boom := errors.New("sink down")
	p := NewPublisher(failingStore{err: boom})
	err := p.Emit(context.Background(), Event{Action: ActionCertificateExportFailed})
	assert.ErrorIs(t, err, boom)
}
