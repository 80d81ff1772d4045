// Package config loads the process-wide configuration shared by both pipeline
// stages. It is read once at startup and treated as read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. INSURANCE_QA_MAIN_PATH.
const EnvPrefix = "INSURANCE_QA"

// ErrMissingMainPath is returned when main_path is not configured.
var ErrMissingMainPath = errors.New("main_path is required")

// Config holds application configuration
type Config struct {
	MainPath string `mapstructure:"main_path"`

	Dataset struct {
		Name      string   `mapstructure:"name"`
		Config    string   `mapstructure:"config"`
		Splits    []string `mapstructure:"splits"`
		BatchSize int      `mapstructure:"batch_size"`
	} `mapstructure:"dataset"`

	Hub struct {
		DatasetsURL string        `mapstructure:"datasets_url"`
		ModelsURL   string        `mapstructure:"models_url"`
		Token       string        `mapstructure:"token"`
		Timeout     time.Duration `mapstructure:"timeout"`
		RetryCount  int           `mapstructure:"retry_count"`
	} `mapstructure:"hub"`

	Scratch struct {
		DataPrep  string `mapstructure:"data_prep"`
		ModelPrep string `mapstructure:"model_prep"`
	} `mapstructure:"scratch"`

	Table struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
		Name   string `mapstructure:"name"`
	} `mapstructure:"table"`

	Model struct {
		Base      string `mapstructure:"base"`
		MaxLength int    `mapstructure:"max_length"`
		OutputDir string `mapstructure:"output_dir"`
		CacheDir  string `mapstructure:"cache_dir"`
		Seed      uint64 `mapstructure:"seed"`
	} `mapstructure:"model"`

	S3 struct {
		Region   string `mapstructure:"region"`
		Endpoint string `mapstructure:"endpoint"` // For testing with MinIO
	} `mapstructure:"s3"`

	Metrics struct {
		Pushgateway string `mapstructure:"pushgateway"`
		Job         string `mapstructure:"job"`
	} `mapstructure:"metrics"`

	Handoff struct {
		Enabled      bool   `mapstructure:"enabled"`
		DryRun       bool   `mapstructure:"dry_run"`
		InCluster    bool   `mapstructure:"in_cluster"`
		Kubeconfig   string `mapstructure:"kubeconfig"`
		Namespace    string `mapstructure:"namespace"`
		Image        string `mapstructure:"image"`
		NodeSelector string `mapstructure:"node_selector"` // key=value
		GPUResource  string `mapstructure:"gpu_resource"`  // e.g., nvidia.com/gpu
		GPUCount     string `mapstructure:"gpu_count"`     // e.g., "1"
		TTLSeconds   int32  `mapstructure:"ttl_seconds"`
	} `mapstructure:"handoff"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataset.name", "j0selit0/insurance-qa-en")
	v.SetDefault("dataset.config", "default")
	v.SetDefault("dataset.splits", []string{"train", "test", "validation"})
	v.SetDefault("dataset.batch_size", 1000)

	v.SetDefault("hub.datasets_url", "https://datasets-server.huggingface.co")
	v.SetDefault("hub.models_url", "https://huggingface.co")
	v.SetDefault("hub.timeout", 2*time.Minute)
	v.SetDefault("hub.retry_count", 0)

	v.SetDefault("scratch.data_prep", "/tmp/insuranceqa")
	v.SetDefault("scratch.model_prep", "/tmp/insurance")

	v.SetDefault("table.driver", "postgres")
	v.SetDefault("table.name", "questions")

	v.SetDefault("model.base", "distilbert-base-uncased")
	v.SetDefault("model.max_length", 512)
	v.SetDefault("model.output_dir", "/tmp/insurance-model")
	v.SetDefault("model.cache_dir", "/tmp/hf-cache")
	v.SetDefault("model.seed", 42)

	v.SetDefault("s3.region", "us-east-1")

	v.SetDefault("metrics.job", "insuranceqa")

	v.SetDefault("handoff.enabled", false)
	v.SetDefault("handoff.dry_run", true)
	v.SetDefault("handoff.in_cluster", true)
	v.SetDefault("handoff.namespace", "apps")
	v.SetDefault("handoff.image", "ghcr.io/yashraj5/insurance-nlp/trainer:main")
	v.SetDefault("handoff.node_selector", "node-role.kubernetes.io/gpu=true")
	v.SetDefault("handoff.gpu_resource", "nvidia.com/gpu")
	v.SetDefault("handoff.gpu_count", "1")
	v.SetDefault("handoff.ttl_seconds", 3600)
}

// Load reads configuration from path (optional), a .env file (optional) and
// INSURANCE_QA_* environment variables, in increasing order of precedence.
func Load(path string) (Config, error) {
	// .env is a convenience for local runs; absence is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about
	v.SetDefault("main_path", "")
	for _, k := range []string{"table.dsn", "hub.token", "s3.endpoint", "metrics.pushgateway", "handoff.kubeconfig"} {
		v.SetDefault(k, "")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the keys both stages depend on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.MainPath) == "" {
		return ErrMissingMainPath
	}
	if c.Dataset.Name == "" {
		return errors.New("dataset.name is required")
	}
	if len(c.Dataset.Splits) == 0 {
		return errors.New("dataset.splits must name at least one split")
	}
	if c.Model.MaxLength <= 2 {
		return fmt.Errorf("model.max_length must leave room for special tokens, got %d", c.Model.MaxLength)
	}
	switch c.Table.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("table.driver must be postgres or sqlite, got %q", c.Table.Driver)
	}
	return nil
}
