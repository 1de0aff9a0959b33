package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certexport/internal/audit"
	"certexport/internal/platform/config"
)

func TestNewWithoutBrokersIsDisabled(t *testing.T) {
	p, err := New(config.KafkaConfig{AuditTopic: "certexport.audit"}, nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestClosedProducerRejectsAppend(t *testing.T) {
	// kgo.NewClient does not dial until the first request.
	p, err := New(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}, AuditTopic: "certexport.audit", Acks: "1"}, nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	err = p.Append(context.Background(), audit.Event{Action: audit.ActionCertificateExported})
	assert.EqualError(t, err, "producer is closed")
	assert.Error(t, p.Health(context.Background()))
}
