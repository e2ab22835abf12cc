package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCert = `-----BEGIN CERTIFICATE-----
MIIBszCCAVmgAwIBAgIUEXAMPLE
-----END CERTIFICATE-----
`

func TestValidate_ValidConfig(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = defaultConfiguration()
	Config.NodeID = 1

	assert.NoError(t, Validate())
}

func TestValidate_InvalidIngressPort(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	for _, port := range []int{-1, 0, 70000} {
		Config = defaultConfiguration()
		Config.Ingress.Port = port
		assert.Error(t, Validate(), "port %d", port)
	}
}

func TestValidate_Debounce(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []struct {
		name        string
		quietMS     int
		maxWaitMS   int
		expectError bool
	}{
		{"defaults", 1000, 5000, false},
		{"equal", 1000, 1000, false},
		{"zero quiet", 0, 5000, true},
		{"max wait below quiet", 2000, 1000, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			Config = defaultConfiguration()
			Config.Debounce.QuietMS = tc.quietMS
			Config.Debounce.MaxWaitMS = tc.maxWaitMS

			err := Validate()
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_NATSIngressRequiresSubject(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = defaultConfiguration()
	Config.Ingress.NATS.Enabled = true
	Config.Ingress.NATS.Subject = ""

	assert.Error(t, Validate())
}

func TestValidate_JournalRetain(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = defaultConfiguration()
	Config.Journal.Enabled = true
	Config.Journal.Retain = 0

	assert.Error(t, Validate())
}

func TestParseWebhookSettings_Absent(t *testing.T) {
	settings, err := ParseWebhookSettings(`
node_id = 7

[debounce]
quiet_ms = 500
`)
	require.NoError(t, err)
	assert.Nil(t, settings)
}

func TestParseWebhookSettings_Flat(t *testing.T) {
	settings, err := ParseWebhookSettings(`
[webhooks]
endpoints = ["https://hooks.example.com/pads", " http://127.0.0.1:8080/changes "]
api_key = "s3cret"
gzip = true
`)
	require.NoError(t, err)
	require.NotNil(t, settings)

	assert.Equal(t, []string{"https://hooks.example.com/pads", "http://127.0.0.1:8080/changes"}, settings.Endpoints)
	assert.Equal(t, "s3cret", settings.APIKey)
	assert.True(t, settings.Gzip)
	assert.Empty(t, settings.CACert)
}

func TestParseWebhookSettings_LegacyPadsUpdate(t *testing.T) {
	settings, err := ParseWebhookSettings(`
[webhooks]
api_key = "k"

[webhooks.pads]
update = ["https://legacy.example.com/hook"]
`)
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, []string{"https://legacy.example.com/hook"}, settings.Endpoints)
}

func TestParseWebhookSettings_FlatWinsOverLegacy(t *testing.T) {
	settings, err := ParseWebhookSettings(`
[webhooks]
endpoints = ["https://flat.example.com"]

[webhooks.pads]
update = ["https://legacy.example.com"]
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://flat.example.com"}, settings.Endpoints)
}

func TestParseWebhookSettings_InvalidCACert(t *testing.T) {
	settings, err := ParseWebhookSettings(`
[webhooks]
endpoints = ["https://hooks.example.com"]
ca_cert = "not-a-cert"
`)
	assert.ErrorIs(t, err, ErrInvalidCACert)
	assert.Nil(t, settings)
}

func TestParseWebhookSettings_InlineCACert(t *testing.T) {
	settings, err := ParseWebhookSettings("[webhooks]\nendpoints = [\"https://h.example.com\"]\nca_cert = '''\n" + testCert + "'''\n")
	require.NoError(t, err)
	assert.Equal(t, testCert, settings.CACert)
}

func TestParseWebhookSettings_CACertFile(t *testing.T) {
	certPath := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(certPath, []byte(testCert), 0600))

	settings, err := ParseWebhookSettings(`
[webhooks]
endpoints = ["https://hooks.example.com"]
ca_cert_file = "` + filepath.ToSlash(certPath) + `"
`)
	require.NoError(t, err)
	assert.Equal(t, testCert, settings.CACert)
}

func TestParseWebhookSettings_InvalidEndpoint(t *testing.T) {
	_, err := ParseWebhookSettings(`
[webhooks]
endpoints = ["not a url"]
`)
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
}

func TestLoad_FromFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = defaultConfiguration()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "padhook.toml")
	content := `
node_id = 42
data_dir = "` + filepath.ToSlash(filepath.Join(dir, "data")) + `"

[webhooks]
endpoints = ["https://hooks.example.com"]
api_key = "abc"

[debounce]
quiet_ms = 250
max_wait_ms = 2000

[journal]
enabled = true
retain = 50
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	require.NoError(t, Load(configPath))
	require.NoError(t, Validate())

	assert.Equal(t, uint64(42), Config.NodeID)
	require.NotNil(t, Config.Webhooks)
	assert.Equal(t, "abc", Config.Webhooks.APIKey)
	assert.Equal(t, 250, Config.Debounce.QuietMS)
	assert.Equal(t, 2000, Config.Debounce.MaxWaitMS)
	assert.Equal(t, 9400, Config.Ingress.Port)
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoad_InvalidCACertIsFatal(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = defaultConfiguration()

	configPath := filepath.Join(t.TempDir(), "padhook.toml")
	content := `
node_id = 1

[webhooks]
endpoints = ["https://hooks.example.com"]
ca_cert = "not-a-cert"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	err := Load(configPath)
	assert.ErrorIs(t, err, ErrInvalidCACert)
	assert.Nil(t, Config.Webhooks)
}

func TestLoadWebhookSettings_Reload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "padhook.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[webhooks]\nendpoints = [\"https://a.example.com\"]\n"), 0644))

	settings, err := LoadWebhookSettings(configPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com"}, settings.Endpoints)

	require.NoError(t, os.WriteFile(configPath, []byte("[webhooks]\nendpoints = [\"https://b.example.com\"]\n"), 0644))
	settings, err = LoadWebhookSettings(configPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://b.example.com"}, settings.Endpoints)
}

func TestExampleConfigLoads(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = defaultConfiguration()
	Config.NodeID = 7

	dataDir := t.TempDir()
	prevDataDir := *DataDirFlag
	*DataDirFlag = dataDir
	defer func() { *DataDirFlag = prevDataDir }()

	require.NoError(t, Load(filepath.Join("..", "padhook.example.toml")))
	require.NoError(t, Validate())

	require.NotNil(t, Config.Webhooks)
	assert.Equal(t, []string{"https://hooks.example.com/pads"}, Config.Webhooks.Endpoints)
	assert.Equal(t, []string{"scratch-*"}, Config.Webhooks.Pads.Exclude)
	assert.True(t, Config.Journal.Enabled)
	assert.Equal(t, dataDir, Config.DataDir)
}
