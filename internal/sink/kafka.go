package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"topicwire/internal/core"
)

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// KafkaPublisher sends one message per topic group, keyed by run ID so a
// run's groups land on the same partition in rank order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      zerolog.Logger
}

// NewKafkaPublisher connects a synchronous producer to the brokers.
func NewKafkaPublisher(cfg KafkaConfig, log zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	if cfg.ClientID != "" {
		saramaConfig.ClientID = cfg.ClientID
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, log), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      log.With().Str("component", "kafka_sink").Str("topic", topic).Logger(),
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, run Run, groups []core.TopicGroup) error {
	if len(groups) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(groups))
	for _, m := range Messages(run, groups) {
		value, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal group %d: %w", m.Group.ClusterID, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: k.topic,
			Key:   sarama.StringEncoder(run.RunID),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("batch_id"), Value: []byte(run.BatchID)},
				{Key: []byte("rank"), Value: []byte(strconv.Itoa(m.Rank))},
			},
		})
	}

	if err := k.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("failed to publish %d topic groups: %w", len(msgs), err)
	}
	k.log.Info().Str("run_id", run.RunID).Int("groups", len(msgs)).Msg("Published topic groups")
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
