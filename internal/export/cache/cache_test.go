package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	certmodels "certexport/internal/certificate/models"
	"certexport/internal/export/cache"
	"certexport/internal/export/models"
)

func sampleDocument() *models.Document {
	return &models.Document{
		ID:            uuid.New(),
		CertificateID: "URN:UVCI:01DE/T/77",
		Type:          certmodels.TemplateTypeTest,
		ContentType:   models.ContentTypePDF,
		Data:          []byte("%PDF-1.3 sample"),
		Pages:         2,
		RenderedAt:    time.Date(2021, 6, 1, 12, 30, 0, 123, time.UTC),
	}
}

func TestKey(t *testing.T) {
	tmpl := []byte("<svg/>")
	k := cache.Key(tmpl, "HC1:abc", certmodels.TemplateTypeVaccination)

	assert.Equal(t, k, cache.Key(tmpl, "HC1:abc", certmodels.TemplateTypeVaccination))
	assert.NotEqual(t, k, cache.Key(tmpl, "HC1:abd", certmodels.TemplateTypeVaccination))
	assert.NotEqual(t, k, cache.Key(tmpl, "HC1:abc", certmodels.TemplateTypeTest))
	assert.NotEqual(t, k, cache.Key([]byte("<svg />"), "HC1:abc", certmodels.TemplateTypeVaccination))
	// part boundaries are length-prefixed
	assert.NotEqual(t, cache.Key([]byte("ab"), "c", ""), cache.Key([]byte("a"), "bc", ""))
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	c := cache.NewMemory(cache.WithMemoryTTL(time.Minute), cache.WithClock(func() time.Time { return now }))

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	doc := sampleDocument()
	require.NoError(t, c.Set(ctx, "k", doc))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc, got)
	assert.Equal(t, "URN:UVCI:01DE/T/77", got.CertificateID, "certificate id survives the CBOR entry")

	got.Data[0] = 'X'
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, byte('%'), again.Data[0], "cached bytes are not shared with callers")

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
