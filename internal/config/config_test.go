package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fieldtasker/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, ":8080", cfg.Addr())
	require.Equal(t, 720, cfg.TokenTTLMinutes())
}

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
server:
  port: 9000
logging:
  level: debug
webhooks:
  - name: crm
    url: https://example.com/hook
    project_id: p-1
`))
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Addr())
	require.Len(t, cfg.Webhooks, 1)
	require.Equal(t, "crm", cfg.Webhooks[0].Name)
}

func TestValidateRejectsBadLevel(t *testing.T) {
	_, err := config.FromYAML([]byte("logging:\n  level: loud\n"))
	require.Error(t, err)
}

func TestValidateRejectsDuplicateWebhook(t *testing.T) {
	_, err := config.FromYAML([]byte(`
webhooks:
  - name: crm
    url: https://a.example.com
  - name: crm
    url: https://b.example.com
`))
	require.Error(t, err)
}
