//go:build integration

package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"piivault/internal/audit"
	"piivault/internal/audit/outbox"
	"piivault/internal/audit/outbox/worker"
	auditstore "piivault/internal/audit/store"
	"piivault/internal/platform/kafka/producer"
	"piivault/pkg/domain"
	"piivault/pkg/testutil/containers"
)

type WorkerIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	kafka    *containers.KafkaContainer
	outbox   *outbox.PostgresStore
	audit    *auditstore.PostgresStore
	producer *producer.Producer
}

func TestWorkerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(WorkerIntegrationSuite))
}

func (s *WorkerIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.kafka = mgr.GetKafka(s.T())

	s.outbox = outbox.NewPostgres(s.postgres.DB)
	s.audit = auditstore.NewPostgres(s.postgres.DB, s.outbox)

	prod, err := producer.New(producer.Config{
		Brokers:         s.kafka.Brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *WorkerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

func (s *WorkerIntegrationSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

// Audit rows written through the store reach Kafka and are marked processed.
func (s *WorkerIntegrationSuite) TestAuditEventReachesKafka() {
	ctx := context.Background()
	topic := "test-audit-events"
	s.Require().NoError(s.kafka.CreateTopic(ctx, topic, 1, 1))

	event := audit.Event{
		ID:              domain.NewEventID(),
		UserReferenceID: "auth0|u1",
		Type:            audit.EventUserErased,
		Timestamp:       time.Now().UTC().Truncate(time.Microsecond),
	}
	s.Require().NoError(s.audit.Append(ctx, event))

	w := worker.New(s.outbox, s.producer,
		worker.WithTopic(topic),
		worker.WithPollInterval(50*time.Millisecond),
	)
	w.Start()
	s.Eventually(func() bool {
		count, _ := s.outbox.CountPending(ctx)
		return count == 0
	}, 5*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.Require().NoError(w.Stop(stopCtx))

	consumer, err := s.kafka.NewConsumer("test-audit-consumer", topic)
	s.Require().NoError(err)
	defer consumer.Close()

	record := s.kafka.WaitForRecord(ctx, consumer, 5*time.Second, func(r *kgo.Record) bool {
		var got audit.Event
		return json.Unmarshal(r.Value, &got) == nil && got.ID == event.ID
	})
	s.Require().NotNil(record)

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal("user", headers["aggregate_type"])
	s.Equal("auth0|u1", headers["aggregate_id"])
	s.Equal(string(audit.EventUserErased), headers["event_type"])
}
