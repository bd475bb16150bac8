//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"charter/internal/events"
	"charter/pkg/testutil/containers"
)

const testTopic = "entitlement-events"

type KafkaSinkSuite struct {
	suite.Suite
	broker string
	sink   *events.KafkaSink
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.broker = containers.NewKafkaContainer(s.T()).Broker

	var err error
	s.sink, err = events.NewKafkaSink([]string{s.broker}, testTopic)
	s.Require().NoError(err)
}

func (s *KafkaSinkSuite) TearDownSuite() {
	if s.sink != nil {
		s.sink.Close()
	}
}

func (s *KafkaSinkSuite) consume(n int) []*kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var records []*kgo.Record
	for len(records) < n {
		fetches := client.PollFetches(ctx)
		s.Require().NoError(fetches.Err())
		records = append(records, fetches.Records()...)
	}
	return records
}

func (s *KafkaSinkSuite) TestPublishRoundTrip() {
	ctx := context.Background()
	publisher := events.NewPublisher(s.sink)

	issued := events.Event{
		Type:          events.TypeCertificateIssued,
		OwnerID:       "org-1",
		ConsumerUUID:  "11111111-2222-3333-4444-555555555555",
		EntitlementID: "ent-1",
		Serial:        "42",
	}
	s.Require().NoError(publisher.Emit(ctx, issued))
	s.Require().NoError(publisher.Emit(ctx, events.Event{
		Type:          events.TypeCertificateRevoked,
		EntitlementID: "ent-1",
		Serial:        "42",
	}))

	records := s.consume(2)
	s.Require().Len(records, 2)

	for _, record := range records {
		s.Equal("ent-1", string(record.Key), "records are keyed by entitlement")
	}

	var first events.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &first))
	s.Equal(events.TypeCertificateIssued, first.Type)
	s.Equal(issued.OwnerID, first.OwnerID)
	s.Equal(issued.Serial, first.Serial)
	s.False(first.Timestamp.IsZero(), "publisher stamps the event")

	var second events.Event
	s.Require().NoError(json.Unmarshal(records[1].Value, &second))
	s.Equal(events.TypeCertificateRevoked, second.Type)
}
