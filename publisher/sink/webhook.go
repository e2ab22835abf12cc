package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/maxpert/padhook/cfg"
	"github.com/maxpert/padhook/publisher"
)

// Webhook request headers
const (
	HeaderAPIKey  = "X-API-KEY"
	HeaderBatchID = "X-Batch-Id"
)

// maxDrainBytes bounds how much of a response body is read before closing
const maxDrainBytes = 64 << 10

// ErrUnexpectedStatus is returned when a webhook answers with a non-2xx status
var ErrUnexpectedStatus = errors.New("webhook returned non-2xx status")

func init() {
	factory := func(endpoint *url.URL, settings *cfg.WebhookSettings) (publisher.Sink, error) {
		return NewWebhookSink(endpoint.String(), settings)
	}
	publisher.RegisterSink("http", factory)
	publisher.RegisterSink("https", factory)
}

// WebhookSink POSTs change batches to an HTTP(S) endpoint
type WebhookSink struct {
	client   *http.Client
	endpoint string
	apiKey   string
	gzip     bool
}

// NewWebhookSink creates a webhook sink. When settings carry a CA certificate
// it is trusted in addition to the system roots.
func NewWebhookSink(endpoint string, settings *cfg.WebhookSettings) (*WebhookSink, error) {
	if settings == nil {
		settings = &cfg.WebhookSettings{}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if settings.CACert != "" {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM([]byte(settings.CACert)) {
			return nil, fmt.Errorf("failed to parse ca_cert")
		}
		transport.TLSClientConfig = &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}
	}

	client := &http.Client{Transport: transport}
	if settings.TimeoutMS > 0 {
		client.Timeout = time.Duration(settings.TimeoutMS) * time.Millisecond
	}

	return &WebhookSink{
		client:   client,
		endpoint: endpoint,
		apiKey:   settings.APIKey,
		gzip:     settings.Gzip,
	}, nil
}

// Publish sends value as the JSON body of a POST request.
// key is sent as the batch id header.
func (w *WebhookSink) Publish(ctx context.Context, key string, value []byte) error {
	body := value
	if w.gzip {
		var err error
		if body, err = gzipBytes(value); err != nil {
			return fmt.Errorf("failed to compress body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if w.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if w.apiKey != "" {
		req.Header.Set(HeaderAPIKey, w.apiKey)
	}
	if key != "" {
		req.Header.Set(HeaderBatchID, key)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	return nil
}

// Close releases idle connections
func (w *WebhookSink) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

func gzipBytes(value []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(value); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
