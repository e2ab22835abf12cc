package publisher

import (
	"context"
	"net/url"
)

// Delivery results
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
)

// Sink is the destination behind one endpoint (webhook, NATS, Kafka)
type Sink interface {
	// Publish sends one encoded batch. key identifies the batch.
	Publish(ctx context.Context, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Filter determines whether changes on a pad are reported
type Filter interface {
	// Match returns true if the pad should be reported
	Match(padID string) bool
}

// DeliveryRecord is one attempt to deliver a batch to one endpoint
type DeliveryRecord struct {
	Seq         uint64 `msgpack:"seq" json:"seq"`
	BatchID     string `msgpack:"batch" json:"batch_id"`
	Endpoint    string `msgpack:"ep" json:"endpoint"`
	Pads        int    `msgpack:"pads" json:"pads"`
	Records     int    `msgpack:"recs" json:"records"`
	Result      string `msgpack:"res" json:"result"`
	Error       string `msgpack:"err,omitempty" json:"error,omitempty"`
	AttemptedAt int64  `msgpack:"at" json:"attempted_at"` // unix ms
	DurationMS  int64  `msgpack:"dur" json:"duration_ms"`
}

// RedactEndpoint hides any password in an endpoint URL for logs and the journal
func RedactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Redacted()
}

// endpointScheme returns the lowercased URL scheme, used as a metrics label
func endpointScheme(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" {
		return "unknown"
	}
	return u.Scheme
}
