//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"certexport/internal/audit"
	"certexport/internal/audit/kafka"
	"certexport/internal/platform/config"
	"certexport/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *kafka.Producer
	topic    string
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	s.topic = "certexport.audit.test"

	p, err := kafka.New(config.KafkaConfig{
		Brokers:         []string{s.kafka.Brokers},
		AuditTopic:      s.topic,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, nil)
	s.Require().NoError(err)
	s.producer = p
	s.Require().NoError(s.producer.EnsureTopic(context.Background(), 1, 1))
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

func (s *ProducerIntegrationSuite) TestAppendDeliversJSONRecord() {
	ctx := context.Background()
	event := audit.Event{
		ID:            uuid.New(),
		Timestamp:     time.Now().UTC(),
		Action:        audit.ActionCertificateExported,
		CertificateID: "URN:UVCI:01DE/B/2",
		TemplateType:  "vaccination",
		Pages:         1,
	}
	s.Require().NoError(s.producer.Append(ctx, event))
	s.Require().NoError(s.producer.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	consumer, err := s.kafka.NewConsumer("audit-test-"+uuid.NewString(), s.topic)
	s.Require().NoError(err)
	defer consumer.Close()

	record := s.kafka.WaitForMessage(ctx, consumer, 15*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == event.CertificateID
	})
	s.Require().NotNil(record)

	var got audit.Event
	s.Require().NoError(json.Unmarshal(record.Value, &got))
	s.Equal(event.ID, got.ID)
	s.Equal(event.Action, got.Action)
	s.Equal("action", record.Headers[0].Key)
}
