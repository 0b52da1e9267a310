//go:build integration

package kafka_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"nameaffirm/internal/platform/kafka"
	"nameaffirm/internal/platform/kafka/consumer"
	"nameaffirm/internal/platform/kafka/producer"
	"nameaffirm/pkg/testutil/containers"
)

type KafkaSuite struct {
	suite.Suite
	brokers  []string
	producer *producer.Producer
}

func TestKafkaSuite(t *testing.T) {
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers
	p, err := producer.New(s.brokers)
	s.Require().NoError(err)
	s.producer = p
}

func (s *KafkaSuite) TearDownSuite() {
	s.producer.Close()
}

func (s *KafkaSuite) TestEnsureTopicsIsIdempotent() {
	ctx := context.Background()
	topic := "ensure-" + uuid.NewString()

	first, err := kafka.EnsureTopics(ctx, s.producer.Client(), 1, 1, topic)
	s.Require().NoError(err)
	s.Require().Len(first, 1)
	s.True(first[0].Created)

	second, err := kafka.EnsureTopics(ctx, s.producer.Client(), 1, 1, topic)
	s.Require().NoError(err)
	s.Require().Len(second, 1)
	s.False(second[0].Created)
}

func (s *KafkaSuite) TestPublishAndConsume() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "roundtrip-" + uuid.NewString()
	_, err := kafka.EnsureTopics(ctx, s.producer.Client(), 1, 1, topic)
	s.Require().NoError(err)

	s.Require().NoError(s.producer.Publish(ctx, topic, []byte("7"), []byte(`{"ok":true}`), map[string]string{"source": "test"}))

	var (
		mu  sync.Mutex
		got *consumer.Message
	)
	c, err := consumer.New(consumer.Config{
		Brokers: s.brokers,
		Group:   "test-" + uuid.NewString(),
		Topics:  []string{topic},
	}, consumer.HandlerFunc(func(_ context.Context, msg *consumer.Message) error {
		mu.Lock()
		got = msg
		mu.Unlock()
		cancel()
		return nil
	}))
	s.Require().NoError(err)
	defer c.Close()

	s.Require().NoError(c.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	s.Require().NotNil(got)
	s.Equal([]byte("7"), got.Key)
	s.Equal("test", got.Headers["source"])
}
