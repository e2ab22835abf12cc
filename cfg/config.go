package cfg

import (
	"errors"
	"flag"
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// PEMCertificateHeader is the marker every configured CA certificate must start with.
const PEMCertificateHeader = "-----BEGIN CERTIFICATE-----"

var (
	// ErrInvalidCACert is returned when ca_cert does not look like a PEM certificate.
	ErrInvalidCACert = errors.New("invalid configuration: ca_cert must be a PEM certificate")
	// ErrInvalidEndpoint is returned for endpoints that are not absolute URLs.
	ErrInvalidEndpoint = errors.New("invalid configuration: endpoint must be an absolute URL")
)

// PadFilterConfiguration selects which pads are reported.
// Update is the legacy location of the endpoint list (pads.update).
type PadFilterConfiguration struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
	Update  []string `toml:"update"`
}

// WebhookSettings is the delivery configuration for change reports.
type WebhookSettings struct {
	Endpoints  []string               `toml:"endpoints"`
	APIKey     string                 `toml:"api_key"`
	CACert     string                 `toml:"ca_cert"`
	CACertFile string                 `toml:"ca_cert_file"`
	Gzip       bool                   `toml:"gzip"`
	TimeoutMS  int                    `toml:"timeout_ms"` // 0 = HTTP client default
	Pads       PadFilterConfiguration `toml:"pads"`
}

// DebounceConfiguration controls how change bursts are coalesced
type DebounceConfiguration struct {
	QuietMS   int `toml:"quiet_ms"`    // Idle time after the last change before a flush
	MaxWaitMS int `toml:"max_wait_ms"` // Upper bound a burst can delay a flush
}

// NATSIngressConfiguration for receiving host events over NATS
type NATSIngressConfiguration struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// IngressConfiguration controls the host-facing event intake
type IngressConfiguration struct {
	BindAddress      string                   `toml:"bind_address"`
	Port             int                      `toml:"port"`
	Secret           string                   `toml:"secret"`
	SessionCacheSize int                      `toml:"session_cache_size"`
	NATS             NATSIngressConfiguration `toml:"nats"`
}

// JournalConfiguration controls the delivery journal
type JournalConfiguration struct {
	Enabled bool `toml:"enabled"`
	Retain  int  `toml:"retain"` // Number of delivery entries kept
}

// AdminConfiguration for operator endpoints
type AdminConfiguration struct {
	Secret string `toml:"secret"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID          uint64 `toml:"node_id"`
	DataDir         string `toml:"data_dir"`
	ShutdownGraceMS int    `toml:"shutdown_grace_ms"`

	// Webhooks stays nil when the [webhooks] table is absent.
	Webhooks *WebhookSettings `toml:"webhooks"`

	Debounce   DebounceConfiguration   `toml:"debounce"`
	Ingress    IngressConfiguration    `toml:"ingress"`
	Journal    JournalConfiguration    `toml:"journal"`
	Admin      AdminConfiguration      `toml:"admin"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "padhook.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	HTTPPortFlag   = flag.Int("http-port", 0, "Ingress HTTP port (overrides config)")
)

// Default configuration
var Config = defaultConfiguration()

func defaultConfiguration() *Configuration {
	return &Configuration{
		NodeID:          0, // Auto-generate
		DataDir:         "./padhook-data",
		ShutdownGraceMS: 5000,

		Debounce: DebounceConfiguration{
			QuietMS:   1000,
			MaxWaitMS: 5000,
		},

		Ingress: IngressConfiguration{
			BindAddress:      "0.0.0.0",
			Port:             9400,
			SessionCacheSize: 10000,
			NATS: NATSIngressConfiguration{
				Enabled: false,
				URL:     "nats://127.0.0.1:4222",
				Subject: "padhook.events",
			},
		},

		Journal: JournalConfiguration{
			Enabled: false,
			Retain:  1000,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},
	}
}

// Load loads configuration from file and applies CLI overrides.
// An invalid [webhooks] table is returned as an error; callers treat it as fatal.
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if Config.Webhooks != nil {
		if err := Config.Webhooks.Prepare(); err != nil {
			Config.Webhooks = nil
			return err
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *HTTPPortFlag != 0 {
		Config.Ingress.Port = *HTTPPortFlag
	}

	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	if Config.Journal.Enabled {
		if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return nil
}

// LoadWebhookSettings re-reads only the [webhooks] table from configPath.
// It returns nil settings without error when the table is absent.
func LoadWebhookSettings(configPath string) (*WebhookSettings, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseWebhookSettings(string(data))
}

// ParseWebhookSettings decodes and prepares the [webhooks] table of a TOML document.
func ParseWebhookSettings(data string) (*WebhookSettings, error) {
	var doc struct {
		Webhooks *WebhookSettings `toml:"webhooks"`
	}
	if _, err := toml.Decode(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if doc.Webhooks == nil {
		return nil, nil
	}
	if err := doc.Webhooks.Prepare(); err != nil {
		return nil, err
	}
	return doc.Webhooks, nil
}

// Prepare resolves the CA certificate, folds the legacy endpoint list and
// validates the result.
func (s *WebhookSettings) Prepare() error {
	if s.CACert == "" && s.CACertFile != "" {
		pem, err := os.ReadFile(s.CACertFile)
		if err != nil {
			return fmt.Errorf("failed to read ca_cert_file: %w", err)
		}
		s.CACert = string(pem)
	}
	if s.CACert != "" && !strings.HasPrefix(s.CACert, PEMCertificateHeader) {
		return ErrInvalidCACert
	}

	endpoints := s.Endpoints
	if len(endpoints) == 0 {
		endpoints = s.Pads.Update
	}
	s.Endpoints = make([]string, 0, len(endpoints))
	for _, raw := range endpoints {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidEndpoint, raw)
		}
		s.Endpoints = append(s.Endpoints, raw)
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("padhook")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Ingress.Port < 1 || Config.Ingress.Port > 65535 {
		return fmt.Errorf("invalid ingress port: %d", Config.Ingress.Port)
	}

	if Config.Ingress.SessionCacheSize < 1 {
		return fmt.Errorf("ingress.session_cache_size must be >= 1")
	}

	if Config.Ingress.NATS.Enabled {
		if Config.Ingress.NATS.URL == "" {
			return fmt.Errorf("ingress.nats.url is required when NATS ingress is enabled")
		}
		if Config.Ingress.NATS.Subject == "" {
			return fmt.Errorf("ingress.nats.subject is required when NATS ingress is enabled")
		}
	}

	if Config.Debounce.QuietMS < 1 {
		return fmt.Errorf("debounce.quiet_ms must be >= 1")
	}
	if Config.Debounce.MaxWaitMS < Config.Debounce.QuietMS {
		return fmt.Errorf("debounce.max_wait_ms (%d) must be >= debounce.quiet_ms (%d)",
			Config.Debounce.MaxWaitMS, Config.Debounce.QuietMS)
	}

	if Config.Journal.Enabled && Config.Journal.Retain < 1 {
		return fmt.Errorf("journal.retain must be >= 1 when the journal is enabled")
	}

	if Config.ShutdownGraceMS < 0 {
		return fmt.Errorf("shutdown_grace_ms must be >= 0")
	}

	if Config.Webhooks != nil && Config.Webhooks.TimeoutMS < 0 {
		return fmt.Errorf("webhooks.timeout_ms must be >= 0")
	}

	return nil
}

// IsAdminAuthEnabled returns true if admin endpoints require a secret
func IsAdminAuthEnabled() bool {
	return Config.Admin.Secret != ""
}

// IsIngressAuthEnabled returns true if host event endpoints require a secret
func IsIngressAuthEnabled() bool {
	return Config.Ingress.Secret != ""
}
