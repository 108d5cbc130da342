package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Engine.Timeout)
	assert.Equal(t, PathStyleWine, cfg.Engine.PathStyle)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stars.yaml")
	yml := `
listen_addr: ":9000"
engine:
  command: ["/opt/stars/run.sh"]
  timeout: 90s
  path_style: native
retry:
  max_attempts: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	t.Setenv("STARS_ENGINE_TIMEOUT", "2m")
	t.Setenv("R2_BUCKET_NAME", "stars-files")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, []string{"/opt/stars/run.sh"}, cfg.Engine.Command)
	assert.Equal(t, 2*time.Minute, cfg.Engine.Timeout, "env wins over yaml")
	assert.Equal(t, PathStyleNative, cfg.Engine.PathStyle)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "stars-files", cfg.Storage.Bucket)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("STARS_ENGINE_TIMEOUT", "soon")
	_, err := Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"empty command": func(c *Config) { c.Engine.Command = nil },
		"zero timeout":  func(c *Config) { c.Engine.Timeout = 0 },
		"path style":    func(c *Config) { c.Engine.PathStyle = "dos" },
		"no storage":    func(c *Config) { c.Storage.LocalDir = "" },
		"no attempts":   func(c *Config) { c.Retry.MaxAttempts = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
