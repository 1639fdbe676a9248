package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// SalesforceConfig holds Salesforce JWT auth settings and the target object.
type SalesforceConfig struct {
	ClientID    string  `yaml:"client_id" mapstructure:"client_id"`
	Username    string  `yaml:"username" mapstructure:"username"`
	KeyPath     string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL    string  `yaml:"login_url" mapstructure:"login_url"`
	SObject     string  `yaml:"sobject" mapstructure:"sobject"`
	NameField   string  `yaml:"name_field" mapstructure:"name_field"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	SearchLimit int     `yaml:"search_limit" mapstructure:"search_limit"`
	// FieldMap renames extracted keys to CRM field API names. Keys without
	// an entry are written unchanged.
	FieldMap map[string]string `yaml:"field_map" mapstructure:"field_map"`
}

// NotionConfig holds the Notion token and the job tracking database.
type NotionConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
	JobDB string `yaml:"job_db" mapstructure:"job_db"`
}

// DiscoveryConfig configures candidate discovery.
type DiscoveryConfig struct {
	Keyword      string `yaml:"keyword" mapstructure:"keyword"`
	TitlePattern string `yaml:"title_pattern" mapstructure:"title_pattern"`
	PageSize     int    `yaml:"page_size" mapstructure:"page_size"`
	MaxItems     int    `yaml:"max_items" mapstructure:"max_items"`
	SweetSpotMin int    `yaml:"sweet_spot_min" mapstructure:"sweet_spot_min"`
	SweetSpotMax int    `yaml:"sweet_spot_max" mapstructure:"sweet_spot_max"`
	// UnstructuredOnly lists only meetings not yet structured.
	UnstructuredOnly bool `yaml:"unstructured_only" mapstructure:"unstructured_only"`
}

// ExtractionConfig configures sharded extraction.
type ExtractionConfig struct {
	ShardsPath       string  `yaml:"shards_path" mapstructure:"shards_path"`
	Parallelism      int     `yaml:"parallelism" mapstructure:"parallelism"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMs        []int   `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	ShardTimeoutSecs int     `yaml:"shard_timeout_secs" mapstructure:"shard_timeout_secs"`
	Temperature      float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens        int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency         int `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize           int `yaml:"batch_size" mapstructure:"batch_size"`
	InterBatchDelayMs   int `yaml:"inter_batch_delay_ms" mapstructure:"inter_batch_delay_ms"`
	CRMTimeoutSecs      int `yaml:"crm_timeout_secs" mapstructure:"crm_timeout_secs"`
	CRMFailureThreshold int `yaml:"crm_failure_threshold" mapstructure:"crm_failure_threshold"`
	CRMResetTimeoutSecs int `yaml:"crm_reset_timeout_secs" mapstructure:"crm_reset_timeout_secs"`
}

// MonitoringConfig configures alert thresholds and delivery.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	SuccessRateMin       float64 `yaml:"success_rate_min" mapstructure:"success_rate_min"`
	ErrorRateMax         float64 `yaml:"error_rate_max" mapstructure:"error_rate_max"`
	MonthlyCostMaxUSD    float64 `yaml:"monthly_cost_max_usd" mapstructure:"monthly_cost_max_usd"`
	AvgProcessingSecsMax float64 `yaml:"avg_processing_secs_max" mapstructure:"avg_processing_secs_max"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// PricingConfig holds per-model token pricing.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// TemporalConfig configures the scheduled worker.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
	Cron      string `yaml:"cron" mapstructure:"cron"`
}

// ExportConfig configures run report delivery.
type ExportConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	FTPAddr     string `yaml:"ftp_addr" mapstructure:"ftp_addr"`
	FTPUser     string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string `yaml:"ftp_password" mapstructure:"ftp_password"`
	FTPDir      string `yaml:"ftp_dir" mapstructure:"ftp_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.sobject", "Account")
	v.SetDefault("salesforce.name_field", "Name")
	v.SetDefault("salesforce.rate_limit", 5.0)
	v.SetDefault("salesforce.search_limit", 10)
	v.SetDefault("discovery.keyword", "初回")
	v.SetDefault("discovery.title_pattern", "")
	v.SetDefault("discovery.page_size", 40)
	v.SetDefault("discovery.max_items", 20)
	v.SetDefault("discovery.sweet_spot_min", 2000)
	v.SetDefault("discovery.sweet_spot_max", 20000)
	v.SetDefault("discovery.unstructured_only", true)
	v.SetDefault("extraction.parallelism", 3)
	v.SetDefault("extraction.max_attempts", 3)
	v.SetDefault("extraction.backoff_ms", []int{1000, 2000})
	v.SetDefault("extraction.shard_timeout_secs", 90)
	v.SetDefault("extraction.temperature", 0.0)
	v.SetDefault("extraction.max_tokens", 4096)
	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("batch.batch_size", 5)
	v.SetDefault("batch.inter_batch_delay_ms", 1000)
	v.SetDefault("batch.crm_timeout_secs", 30)
	v.SetDefault("batch.crm_failure_threshold", 5)
	v.SetDefault("batch.crm_reset_timeout_secs", 60)
	v.SetDefault("monitoring.success_rate_min", 0.8)
	v.SetDefault("monitoring.error_rate_max", 0.2)
	v.SetDefault("monitoring.monthly_cost_max_usd", 500.0)
	v.SetDefault("monitoring.avg_processing_secs_max", 60.0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "transcript-sync")
	v.SetDefault("temporal.cron", "0 * * * *")
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.ftp_dir", "/")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by the given mode are present
// and that numeric knobs are in range. Known modes: run, dry-run, serve,
// worker, schedule, import, migrate.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(val, key string) {
		if val == "" {
			errs = append(errs, key+" is required")
		}
	}

	switch mode {
	case "run", "serve", "worker":
		require(c.Store.DatabaseURL, "store.database_url")
		require(c.Anthropic.Key, "anthropic.key")
		require(c.Salesforce.ClientID, "salesforce.client_id")
		require(c.Salesforce.Username, "salesforce.username")
		require(c.Salesforce.KeyPath, "salesforce.key_path")
	case "dry-run":
		require(c.Store.DatabaseURL, "store.database_url")
		require(c.Salesforce.ClientID, "salesforce.client_id")
		require(c.Salesforce.Username, "salesforce.username")
		require(c.Salesforce.KeyPath, "salesforce.key_path")
	case "import", "migrate":
		require(c.Store.DatabaseURL, "store.database_url")
	case "schedule":
		require(c.Temporal.HostPort, "temporal.host_port")
		require(c.Temporal.Cron, "temporal.cron")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
		errs = append(errs, "batch.concurrency must be between 1 and 50")
	}
	if c.Batch.BatchSize < 1 {
		errs = append(errs, "batch.batch_size must be >= 1")
	}
	if c.Discovery.PageSize < 1 {
		errs = append(errs, "discovery.page_size must be >= 1")
	}
	if c.Monitoring.SuccessRateMin < 0 || c.Monitoring.SuccessRateMin > 1 {
		errs = append(errs, "monitoring.success_rate_min must be between 0 and 1")
	}
	if c.Monitoring.ErrorRateMax < 0 || c.Monitoring.ErrorRateMax > 1 {
		errs = append(errs, "monitoring.error_rate_max must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
