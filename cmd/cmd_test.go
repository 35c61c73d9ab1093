package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptive-reasoner/internal/models"
)

func TestExecute_Usage(t *testing.T) {
	assert.NoError(t, Execute(context.Background(), nil))
	assert.NoError(t, Execute(context.Background(), []string{"help"}))
}

func TestExecute_UnknownCommand(t *testing.T) {
	err := Execute(context.Background(), []string{"bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "bogus"`)
}

func TestServe_MissingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	err := Execute(context.Background(), []string{"serve", "--config", path, "--env-file", ""})
	require.Error(t, err)
	assert.Equal(t, models.KindConfig, models.KindOf(err))
}

func TestServe_InvalidPortOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  deep:
    model_name: qwen
    api_url: http://localhost:1
    api_key: UNSET_TEST_KEY
    reasoning_budget: 10
`), 0o600))

	err := Execute(context.Background(), []string{"serve", "--config", path, "--port", "70000", "--env-file", ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a valid TCP port")
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AR_CMD_TEST_KEY=secret\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("AR_CMD_TEST_KEY") })

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "secret", os.Getenv("AR_CMD_TEST_KEY"))
}
