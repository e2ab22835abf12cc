package sink

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKafkaConfig(t *testing.T) {
	config := DefaultKafkaConfig([]string{"localhost:9092", "localhost:9093"}, "pads")

	assert.Len(t, config.Brokers, 2)
	assert.Equal(t, "localhost:9092", config.Brokers[0])
	assert.Equal(t, "pads", config.Topic)
	assert.Equal(t, DefaultKafkaBatchSize, config.BatchSize)
	assert.Equal(t, int64(1048576), config.BatchBytes)
	assert.Equal(t, kafka.RequireAll, config.RequiredAcks)
}

func TestParseKafkaEndpoint(t *testing.T) {
	u, err := url.Parse("kafka://b1:9092,b2:9092/pad-changes?acks=one&batch_size=10")
	require.NoError(t, err)

	config, err := ParseKafkaEndpoint(u)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, config.Brokers)
	assert.Equal(t, "pad-changes", config.Topic)
	assert.Equal(t, kafka.RequireOne, config.RequiredAcks)
	assert.Equal(t, 10, config.BatchSize)
}

func TestParseKafkaEndpointDefaults(t *testing.T) {
	u, err := url.Parse("kafka://localhost:9092")
	require.NoError(t, err)

	config, err := ParseKafkaEndpoint(u)
	require.NoError(t, err)
	assert.Equal(t, DefaultKafkaTopic, config.Topic)
	assert.Equal(t, kafka.RequireAll, config.RequiredAcks)
}

func TestParseKafkaEndpointInvalid(t *testing.T) {
	for _, raw := range []string{
		"kafka://localhost:9092/t?acks=some",
		"kafka://localhost:9092/t?batch_size=0",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		_, err = ParseKafkaEndpoint(u)
		assert.Error(t, err, raw)
	}
}

func TestNewKafkaSink(t *testing.T) {
	config := KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "pads",
		BatchSize:    50,
		BatchBytes:   2048,
		RequiredAcks: kafka.RequireOne,
	}

	sink, err := NewKafkaSink(config)
	require.NoError(t, err)
	require.NotNil(t, sink.writer)

	assert.Equal(t, "pads", sink.writer.Topic)
	assert.Equal(t, 50, sink.writer.BatchSize)
	assert.Equal(t, int64(2048), sink.writer.BatchBytes)
	assert.Equal(t, kafka.RequireOne, sink.writer.RequiredAcks)
	assert.False(t, sink.writer.Async)

	assert.NoError(t, sink.Close())
}

func TestNewKafkaSinkRequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "pads"})
	assert.Error(t, err)

	_, err = NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestMockSinkPublish(t *testing.T) {
	mock := &MockSink{}

	require.NoError(t, mock.Publish(context.Background(), "key1", []byte("value1")))

	msgs := mock.Published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "key1", msgs[0].Key)
	assert.Equal(t, []byte("value1"), msgs[0].Value)

	mock.Reset()
	assert.Empty(t, mock.Published())
}

func TestMockSinkPublishError(t *testing.T) {
	mock := &MockSink{PublishErr: errors.New("boom")}

	assert.Error(t, mock.Publish(context.Background(), "k", []byte("v")))
	assert.Empty(t, mock.Published())

	require.NoError(t, mock.Close())
	assert.True(t, mock.IsClosed())
}
