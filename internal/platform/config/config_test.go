package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"CERTEXPORT_ENV", "CERTEXPORT_ADDR", "EXPORT_STRICT_TEMPLATES", "KAFKA_BROKERS", "EXPORT_RENDER_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.False(t, cfg.IsProduction())
	assert.True(t, cfg.Export.StrictTemplates)
	assert.Equal(t, 10*time.Second, cfg.Export.RenderTimeout)
	assert.Equal(t, 1000, cfg.Export.QRSize)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.NotEmpty(t, cfg.Auth.JWTSigningKey)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CERTEXPORT_ENV", "production")
	t.Setenv("EXPORT_RENDER_TIMEOUT", "3s")
	t.Setenv("EXPORT_QR_SIZE", "not-a-number")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("EXPORT_STRICT_TEMPLATES", "")

	cfg := FromEnv()
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.Export.StrictTemplates)
	assert.Equal(t, 3*time.Second, cfg.Export.RenderTimeout)
	assert.Equal(t, 1000, cfg.Export.QRSize)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)

	t.Setenv("EXPORT_STRICT_TEMPLATES", "true")
	assert.True(t, FromEnv().Export.StrictTemplates)
}
