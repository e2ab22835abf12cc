package sink

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/maxpert/padhook/cfg"
	"github.com/maxpert/padhook/publisher"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultKafkaTopic      = "padhook-changes"
	DefaultKafkaBatchSize  = 1
	DefaultKafkaBatchBytes = 1 << 20 // 1MB
)

func init() {
	publisher.RegisterSink("kafka", func(endpoint *url.URL, _ *cfg.WebhookSettings) (publisher.Sink, error) {
		config, err := ParseKafkaEndpoint(endpoint)
		if err != nil {
			return nil, err
		}
		return NewKafkaSink(config)
	})
}

// KafkaSink implements the Sink interface for Kafka publishing
type KafkaSink struct {
	writer *kafka.Writer
}

// KafkaConfig holds configuration for KafkaSink
type KafkaConfig struct {
	Brokers          []string           // Kafka broker addresses
	Topic            string             // Topic every batch is written to
	BatchSize        int                // Messages buffered per write (default: 1)
	BatchBytes       int64              // Max batch bytes (default: 1MB)
	RequiredAcks     kafka.RequiredAcks // Ack requirement (default: RequireAll)
	AutoCreateTopics bool               // Auto-create topics if they don't exist (default: true)
}

// DefaultKafkaConfig returns a KafkaConfig with sensible defaults
func DefaultKafkaConfig(brokers []string, topic string) KafkaConfig {
	return KafkaConfig{
		Brokers:          brokers,
		Topic:            topic,
		BatchSize:        DefaultKafkaBatchSize,
		BatchBytes:       DefaultKafkaBatchBytes,
		RequiredAcks:     kafka.RequireAll,
		AutoCreateTopics: true,
	}
}

// ParseKafkaEndpoint reads kafka://broker1:9092,broker2:9092/topic[?acks=one]
func ParseKafkaEndpoint(endpoint *url.URL) (KafkaConfig, error) {
	var brokers []string
	for _, b := range strings.Split(endpoint.Host, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	topic := strings.Trim(endpoint.Path, "/")
	if topic == "" {
		topic = DefaultKafkaTopic
	}

	config := DefaultKafkaConfig(brokers, topic)

	q := endpoint.Query()
	switch q.Get("acks") {
	case "", "all":
	case "one":
		config.RequiredAcks = kafka.RequireOne
	case "none":
		config.RequiredAcks = kafka.RequireNone
	default:
		return config, fmt.Errorf("invalid kafka acks %q", q.Get("acks"))
	}

	if v := q.Get("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return config, fmt.Errorf("invalid kafka batch_size %q", v)
		}
		config.BatchSize = n
	}

	return config, nil
}

// NewKafkaSink creates a new KafkaSink with the given configuration
func NewKafkaSink(config KafkaConfig) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}

	if config.BatchSize == 0 {
		config.BatchSize = DefaultKafkaBatchSize
	}
	if config.BatchBytes == 0 {
		config.BatchBytes = DefaultKafkaBatchBytes
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{}, // Same batch id -> same partition
		BatchSize:              config.BatchSize,
		BatchBytes:             config.BatchBytes,
		RequiredAcks:           config.RequiredAcks,
		Async:                  false,
		AllowAutoTopicCreation: config.AutoCreateTopics,
	}

	return &KafkaSink{writer: writer}, nil
}

// Publish writes one batch keyed by its batch id
func (k *KafkaSink) Publish(ctx context.Context, key string, value []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

// Close releases resources held by the KafkaSink
func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
