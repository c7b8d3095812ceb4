package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"driverecover/internal/errors"
	"driverecover/internal/restore"
)

// EnvPrefix prefixes every environment variable except the S3 ones, which
// keep their historic names.
const EnvPrefix = "DRIVERECOVER"

const (
	BackendGraph = "graph"
	BackendS3    = "s3"
)

type Config struct {
	Backend     string        `mapstructure:"backend"`
	Graph       GraphConfig   `mapstructure:"graph"`
	S3          S3Config      `mapstructure:"s3"`
	Restore     RestoreConfig `mapstructure:"restore"`
	Log         LogConfig     `mapstructure:"log"`
	MetricsAddr string        `mapstructure:"metrics_addr"`

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool `mapstructure:"-"`
}

type GraphConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	DriveID           string  `mapstructure:"drive_id"`
	TenantID          string  `mapstructure:"tenant_id"`
	ClientID          string  `mapstructure:"client_id"`
	ClientSecret      string  `mapstructure:"client_secret"`
	AccessToken       string  `mapstructure:"access_token"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type S3Config struct {
	ApiURL     string `mapstructure:"api_url"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	Region     string `mapstructure:"region"`
}

type RestoreConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ListTimeout    time.Duration `mapstructure:"list_timeout"`
	BulkTimeout    time.Duration `mapstructure:"bulk_timeout"`
	FetchLimit     int           `mapstructure:"fetch_limit"`
	BulkRestore    bool          `mapstructure:"bulk_restore"`
	Exclude        []string      `mapstructure:"exclude"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads .env, the optional config file and the environment, in that
// order of increasing precedence over the defaults.
func Load(configFile string) (*Config, error) {
	envLoaded := godotenv.Load() == nil

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	legacy := map[string]string{
		"s3.api_url":     "API_URL",
		"s3.access_key":  "ACCESS_KEY",
		"s3.secret_key":  "SECRET_KEY",
		"s3.bucket_name": "BUCKET_NAME",
		"s3.region":      "REGION",
	}
	for key, env := range legacy {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "bind %s", env)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.EnvFileLoaded = envLoaded

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := restore.DefaultOptions()

	v.SetDefault("backend", BackendGraph)

	v.SetDefault("graph.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("graph.drive_id", "")
	v.SetDefault("graph.tenant_id", "")
	v.SetDefault("graph.client_id", "")
	v.SetDefault("graph.client_secret", "")
	v.SetDefault("graph.access_token", "")
	v.SetDefault("graph.requests_per_second", 0)

	v.SetDefault("s3.api_url", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.region", "")

	v.SetDefault("restore.max_attempts", d.MaxAttempts)
	v.SetDefault("restore.retry_delay", d.RetryDelay)
	v.SetDefault("restore.request_timeout", d.RequestTimeout)
	v.SetDefault("restore.list_timeout", d.ListTimeout)
	v.SetDefault("restore.bulk_timeout", d.BulkTimeout)
	v.SetDefault("restore.fetch_limit", d.FetchLimit)
	v.SetDefault("restore.bulk_restore", true)
	v.SetDefault("restore.exclude", d.Exclude)
	v.SetDefault("restore.max_concurrency", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("metrics_addr", "")
}

// Validate checks that the selected backend can be reached.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGraph:
		g := c.Graph
		if g.AccessToken == "" && (g.TenantID == "" || g.ClientID == "" || g.ClientSecret == "") {
			return errors.New("graph backend needs an access token or tenant id, client id and client secret")
		}
	case BackendS3:
		if c.S3.BucketName == "" {
			return errors.New("s3 backend needs a bucket name")
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}

	if c.Restore.MaxAttempts < 1 {
		return errors.New("restore.max_attempts must be at least 1")
	}
	if c.Restore.FetchLimit < 1 {
		return errors.New("restore.fetch_limit must be at least 1")
	}
	if c.Restore.MaxConcurrency < 0 {
		return errors.New("restore.max_concurrency must not be negative")
	}
	return nil
}

// Options converts the section into restore options.
func (r RestoreConfig) Options() restore.Options {
	exclude := r.Exclude
	if exclude == nil {
		exclude = []string{}
	}
	return restore.Options{
		Exclude:        exclude,
		DisableBulk:    !r.BulkRestore,
		MaxAttempts:    r.MaxAttempts,
		RetryDelay:     r.RetryDelay,
		RequestTimeout: r.RequestTimeout,
		ListTimeout:    r.ListTimeout,
		BulkTimeout:    r.BulkTimeout,
		FetchLimit:     r.FetchLimit,
		MaxConcurrency: r.MaxConcurrency,
	}
}
