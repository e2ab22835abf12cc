package sink

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/maxpert/padhook/cfg"
	"github.com/maxpert/padhook/publisher"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DefaultNatsSubject = "padhook.changes"
	natsPublishTimeout = 5 * time.Second
)

func init() {
	publisher.RegisterSink("nats", func(endpoint *url.URL, settings *cfg.WebhookSettings) (publisher.Sink, error) {
		config := ParseNatsEndpoint(endpoint)
		if settings != nil {
			config.APIKey = settings.APIKey
		}
		return NewNatsSink(config)
	})
}

// NatsConfig holds configuration for NatsSink
type NatsConfig struct {
	URL     string // Server URL including credentials
	Subject string // Subject batches are published on
	Stream  string // JetStream stream name; empty publishes on core NATS
	APIKey  string // Sent as a message header when set
}

// ParseNatsEndpoint reads nats://[user:pass@]host:port/subject[?stream=NAME]
func ParseNatsEndpoint(endpoint *url.URL) NatsConfig {
	server := url.URL{Scheme: endpoint.Scheme, User: endpoint.User, Host: endpoint.Host}

	subject := strings.Trim(endpoint.Path, "/")
	if subject == "" {
		subject = DefaultNatsSubject
	}

	return NatsConfig{
		URL:     server.String(),
		Subject: subject,
		Stream:  endpoint.Query().Get("stream"),
	}
}

// NatsSink implements the Sink interface for NATS publishing
type NatsSink struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	config  NatsConfig
	ensured atomic.Bool
}

// NewNatsSink connects to NATS. The connection retries in the background,
// so an unreachable server surfaces as a publish error.
func NewNatsSink(config NatsConfig) (*NatsSink, error) {
	if config.Subject == "" {
		return nil, fmt.Errorf("nats sink requires a subject")
	}

	nc, err := nats.Connect(config.URL,
		nats.Name("padhook"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s := &NatsSink{nc: nc, config: config}
	if config.Stream != "" {
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		s.js = js
	}

	return s, nil
}

// Publish sends one batch with the same headers a webhook call carries
func (n *NatsSink) Publish(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, natsPublishTimeout)
	defer cancel()

	msg := nats.NewMsg(n.config.Subject)
	msg.Data = value
	msg.Header.Set(HeaderBatchID, key)
	if n.config.APIKey != "" {
		msg.Header.Set(HeaderAPIKey, n.config.APIKey)
	}

	if n.js != nil {
		if err := n.ensureStream(ctx); err != nil {
			return err
		}
		if _, err := n.js.PublishMsg(ctx, msg); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", n.config.Subject, err)
		}
		return nil
	}

	if err := n.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", n.config.Subject, err)
	}
	if err := n.nc.FlushTimeout(natsPublishTimeout); err != nil {
		return fmt.Errorf("failed to flush %s: %w", n.config.Subject, err)
	}
	return nil
}

// ensureStream creates the JetStream stream once per sink
func (n *NatsSink) ensureStream(ctx context.Context) error {
	if n.ensured.Load() {
		return nil
	}

	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      sanitizeStreamName(n.config.Stream),
		Subjects:  []string{n.config.Subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", n.config.Stream, err)
	}

	n.ensured.Store(true)
	return nil
}

// Close releases resources held by the NatsSink
func (n *NatsSink) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

// sanitizeStreamName converts a name to a valid JetStream stream name
// JetStream stream names can't contain "." so we replace with "_"
func sanitizeStreamName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}
