package publisher

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/maxpert/padhook/cfg"
)

// SinkFactory creates a Sink for one endpoint
type SinkFactory func(endpoint *url.URL, settings *cfg.WebhookSettings) (Sink, error)

var (
	sinkFactories = make(map[string]SinkFactory)
	factoryMu     sync.RWMutex
)

// RegisterSink registers a sink factory for a URL scheme
func RegisterSink(scheme string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[strings.ToLower(scheme)] = factory
}

// RegisteredSchemes lists the schemes with a sink factory
func RegisteredSchemes() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	schemes := make([]string, 0, len(sinkFactories))
	for scheme := range sinkFactories {
		schemes = append(schemes, scheme)
	}
	return schemes
}

// createSink creates a sink based on the endpoint scheme
func createSink(endpoint string, settings *cfg.WebhookSettings) (Sink, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	factoryMu.RLock()
	factory, exists := sinkFactories[strings.ToLower(u.Scheme)]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink scheme: %s", u.Scheme)
	}

	return factory(u, settings)
}
