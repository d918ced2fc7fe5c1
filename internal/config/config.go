package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type ProvidersConfig struct {
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
}

type GenerationConfig struct {
	StageTimeout      time.Duration `mapstructure:"stage_timeout"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
	ResultURLTTL      time.Duration `mapstructure:"result_url_ttl"`
}

type ChainConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RPCURL         string        `mapstructure:"rpc_url"`
	RescanInterval time.Duration `mapstructure:"rescan_interval"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type Config struct {
	DatabaseURL string           `mapstructure:"database_url"`
	ServerPort  string           `mapstructure:"server_port"`
	JWTSecret   string           `mapstructure:"jwt_secret"`
	TemporalURL string           `mapstructure:"temporal_url"`
	Providers   ProvidersConfig  `mapstructure:"providers"`
	Generation  GenerationConfig `mapstructure:"generation"`
	Chain       ChainConfig      `mapstructure:"chain"`
	Storage     StorageConfig    `mapstructure:"storage"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}
	if config.Generation.StageTimeout == 0 {
		config.Generation.StageTimeout = 2 * time.Minute
	}
	if config.Generation.WorkerConcurrency == 0 {
		config.Generation.WorkerConcurrency = 4
	}
	if config.Generation.ResultURLTTL == 0 {
		config.Generation.ResultURLTTL = 24 * time.Hour
	}
	if config.Chain.RescanInterval == 0 {
		config.Chain.RescanInterval = 30 * time.Second
	}
	if config.Storage.Bucket == "" {
		config.Storage.Bucket = "forge-datasets"
	}

	return &config
}
