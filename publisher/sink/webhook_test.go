package sink

import (
	"bytes"
	"context"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/maxpert/padhook/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPayload = `{"pads":{"pad1":[{"userId":"alice","revision":7,"clientIp":"1.2.3.4"}]}}`

type capturedRequest struct {
	method  string
	headers http.Header
	body    []byte
}

func capturingServer(t *testing.T, status int, tls bool) (*httptest.Server, func() []capturedRequest) {
	var mu sync.Mutex
	var reqs []capturedRequest

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		mu.Lock()
		reqs = append(reqs, capturedRequest{method: r.Method, headers: r.Header.Clone(), body: body})
		mu.Unlock()

		w.WriteHeader(status)
	})

	var srv *httptest.Server
	if tls {
		srv = httptest.NewTLSServer(handler)
	} else {
		srv = httptest.NewServer(handler)
	}
	t.Cleanup(srv.Close)

	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), reqs...)
	}
}

func TestWebhookSinkPostsPayload(t *testing.T) {
	srv, captured := capturingServer(t, http.StatusOK, false)

	sink, err := NewWebhookSink(srv.URL, &cfg.WebhookSettings{APIKey: "secret-key"})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Publish(context.Background(), "00000000deadbeef", []byte(testPayload)))

	reqs := captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "application/json", reqs[0].headers.Get("Content-Type"))
	assert.Equal(t, "secret-key", reqs[0].headers.Get(HeaderAPIKey))
	assert.Equal(t, "00000000deadbeef", reqs[0].headers.Get(HeaderBatchID))
	assert.JSONEq(t, testPayload, string(reqs[0].body))
}

func TestWebhookSinkOmitsEmptyAPIKey(t *testing.T) {
	srv, captured := capturingServer(t, http.StatusNoContent, false)

	sink, err := NewWebhookSink(srv.URL, &cfg.WebhookSettings{})
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), "k", []byte(testPayload)))

	reqs := captured()
	require.Len(t, reqs, 1)
	_, present := reqs[0].headers[http.CanonicalHeaderKey(HeaderAPIKey)]
	assert.False(t, present)
}

func TestWebhookSinkNon2xxIsError(t *testing.T) {
	srv, captured := capturingServer(t, http.StatusInternalServerError, false)

	sink, err := NewWebhookSink(srv.URL, nil)
	require.NoError(t, err)

	err = sink.Publish(context.Background(), "k", []byte(testPayload))
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Len(t, captured(), 1)
}

func TestWebhookSinkNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sink, err := NewWebhookSink(url, &cfg.WebhookSettings{TimeoutMS: 500})
	require.NoError(t, err)

	assert.Error(t, sink.Publish(context.Background(), "k", []byte(testPayload)))
}

func TestWebhookSinkGzip(t *testing.T) {
	srv, captured := capturingServer(t, http.StatusOK, false)

	sink, err := NewWebhookSink(srv.URL, &cfg.WebhookSettings{Gzip: true})
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), "k", []byte(testPayload)))

	reqs := captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, "gzip", reqs[0].headers.Get("Content-Encoding"))

	zr, err := gzip.NewReader(bytes.NewReader(reqs[0].body))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, testPayload, string(plain))
}

func TestWebhookSinkTrustsConfiguredCA(t *testing.T) {
	srv, captured := capturingServer(t, http.StatusOK, true)

	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	sink, err := NewWebhookSink(srv.URL, &cfg.WebhookSettings{CACert: string(caPEM)})
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), "k", []byte(testPayload)))
	assert.Len(t, captured(), 1)
}

func TestWebhookSinkRejectsUnknownCA(t *testing.T) {
	srv, captured := capturingServer(t, http.StatusOK, true)

	sink, err := NewWebhookSink(srv.URL, &cfg.WebhookSettings{})
	require.NoError(t, err)

	assert.Error(t, sink.Publish(context.Background(), "k", []byte(testPayload)))
	assert.Empty(t, captured())
}

func TestNewWebhookSinkBadPEM(t *testing.T) {
	_, err := NewWebhookSink("https://example.com", &cfg.WebhookSettings{
		CACert: cfg.PEMCertificateHeader + "\nnot base64\n-----END CERTIFICATE-----\n",
	})
	assert.Error(t, err)
}
