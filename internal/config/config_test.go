package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnvironment, cfg.Environment)
	assert.Equal(t, DefaultModelDir, cfg.ModelDir)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	assert.Equal(t, int64(64<<20), cfg.MaxImagePixels())
	assert.Equal(t, "0.0.0.0:8501", cfg.Addr())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TUMORSCAN_PORT", "9000")
	t.Setenv("TUMORSCAN_MODEL_DIR", "/models/brain")
	t.Setenv("TUMORSCAN_RESIZE_METHOD", "lanczos3")
	t.Setenv("TUMORSCAN_ENVIRONMENT", "prod")
	t.Setenv("TUMORSCAN_MAX_IMAGE_MPX", "16")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/models/brain", cfg.ModelDir)
	assert.Equal(t, "lanczos3", cfg.ResizeMethod)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, int64(16<<20), cfg.MaxImagePixels())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8080\nmax_upload_mb: 2\nonnxruntime_lib: /usr/lib/libonnxruntime.so\n"), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(2), cfg.MaxUploadMB)
	assert.Equal(t, "/usr/lib/libonnxruntime.so", cfg.OnnxRuntimeLib)

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("TUMORSCAN_ENVIRONMENT", "staging")
	_, err := Load(viper.New(), "")
	require.ErrorContains(t, err, "unknown environment")

	cfg := &Config{Port: 0, ModelDir: "m", MaxUploadMB: 1, MaxImageMpx: 1, Environment: "dev"}
	require.Error(t, cfg.Validate())

	cfg = &Config{Port: 8501, ModelDir: "m", MaxUploadMB: 1, MaxImageMpx: 0, Environment: "dev"}
	require.ErrorContains(t, cfg.Validate(), "max_image_mpx")
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TUMORSCAN_TEST_ENV_FILE=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TUMORSCAN_TEST_ENV_FILE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("TUMORSCAN_TEST_ENV_FILE"))

	require.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
}
