package factory

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptive-reasoner/internal/config"
	"adaptive-reasoner/internal/models"
	"adaptive-reasoner/internal/provider"
)

func TestRegisterConfiguredRoutes(t *testing.T) {
	cfg, err := config.Parse([]byte(`
reasoning:
  rendering_mode: separate_field
models:
  deep:
    model_name: qwen3
    api_url: http://localhost:8000/v1/
    api_key: DEEP_KEY
    reasoning_budget: 2048
    rendering_mode: inline_markers
    extra:
      temperature: 0.6
  fast:
    model_name: qwen3-small
    api_url: http://localhost:8001/v1
    reasoning_budget: 256
aliases:
  default: fast
`))
	require.NoError(t, err)

	reg := provider.NewRegistry()
	require.NoError(t, RegisterConfiguredRoutes(cfg, reg))

	assert.Equal(t, []string{"deep", "default", "fast"}, reg.Names())

	deep, err := reg.LookupRoute("deep")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/v1", deep.APIURL)
	assert.Equal(t, models.RenderInlineMarkers, deep.RenderingMode)
	assert.JSONEq(t, `0.6`, string(deep.Extra["temperature"]))

	fast, err := reg.LookupRoute("default")
	require.NoError(t, err)
	assert.Equal(t, "qwen3-small", fast.ModelName)
	assert.Equal(t, models.RenderSeparateField, fast.RenderingMode)
}

func TestRegisterConfiguredRoutes_NilRegistry(t *testing.T) {
	assert.Error(t, RegisterConfiguredRoutes(config.Config{}, nil))
}

func TestNewHTTPClient(t *testing.T) {
	client := NewHTTPClient(config.UpstreamConfig{
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxIdleConns:   8,
	})

	assert.Zero(t, client.Timeout)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, transport.ResponseHeaderTimeout)
	assert.Equal(t, 8, transport.MaxIdleConnsPerHost)
}
