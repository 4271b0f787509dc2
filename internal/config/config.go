package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "TUMORSCAN"

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8501
	DefaultEnvironment = "dev"
	DefaultModelDir    = "saved_model/my_model"
	DefaultMaxUploadMB = 10
	DefaultMaxImageMpx = 64
)

type Config struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Environment    string `mapstructure:"environment"`
	ModelDir       string `mapstructure:"model_dir"`
	OnnxRuntimeLib string `mapstructure:"onnxruntime_lib"`
	ResizeMethod   string `mapstructure:"resize_method"`
	MaxUploadMB    int64  `mapstructure:"max_upload_mb"`
	MaxImageMpx    int64  `mapstructure:"max_image_mpx"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// MaxImagePixels is the largest declared width×height accepted for decoding.
func (c *Config) MaxImagePixels() int64 {
	return c.MaxImageMpx << 20
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("environment", DefaultEnvironment)
	v.SetDefault("model_dir", DefaultModelDir)
	v.SetDefault("onnxruntime_lib", "")
	v.SetDefault("resize_method", "")
	v.SetDefault("max_upload_mb", DefaultMaxUploadMB)
	v.SetDefault("max_image_mpx", DefaultMaxImageMpx)
}

// BindEnv makes v read TUMORSCAN_* variables, with dashes and dots in keys
// mapped to underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(
		`-`, `_`,
		`.`, `_`,
	))
	v.AutomaticEnv()
}

// LoadEnvFile loads envFile into the process environment. An empty path
// tries ./.env and ignores its absence.
func LoadEnvFile(envFile string) error {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
		return nil
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load reads the configuration from v, optionally merging a config file.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	BindEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ModelDir == "" {
		return errors.New("model_dir is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max_upload_mb %d", c.MaxUploadMB)
	}
	if c.MaxImageMpx <= 0 {
		return fmt.Errorf("invalid max_image_mpx %d", c.MaxImageMpx)
	}
	switch c.Environment {
	case "dev", "prod", "test":
	default:
		return fmt.Errorf("unknown environment %q (want dev, prod or test)", c.Environment)
	}
	return nil
}
