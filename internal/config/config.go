package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration. It is built
// once at startup and passed down explicitly; nothing in the pipeline
// reads process-wide mutable state, so test runs cannot interfere with
// each other.
type Config struct {
	Source   SourceConfig   `yaml:"source" envconfig:"SOURCE"`
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
}

// SourceConfig contains upstream data source configuration.
type SourceConfig struct {
	EPABaseURL   string        `yaml:"epa_base_url" envconfig:"EPA_BASE_URL" default:"https://data.epa.gov/efservice"`
	DefaultTable string        `yaml:"default_table" envconfig:"DEFAULT_TABLE" default:"pub_facts_sector_ghg_emission"`
	BatchSize    int           `yaml:"batch_size" envconfig:"BATCH_SIZE" default:"1000"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"MAX_RETRIES" default:"3"`
	RateLimitRPS float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"5"`
	RawDataDir   string        `yaml:"raw_data_dir" envconfig:"RAW_DATA_DIR" default:"data/raw"`
}

// PipelineConfig contains validation and aggregation configuration.
type PipelineConfig struct {
	MinYear     int     `yaml:"min_year" envconfig:"MIN_YEAR" default:"1990"`
	MaxQuantity float64 `yaml:"max_quantity" envconfig:"MAX_QUANTITY" default:"1e9"`
	// TopReasons caps how many rejection reasons the run summary reports.
	TopReasons int `yaml:"top_reasons" envconfig:"TOP_REASONS" default:"5"`
}

// ServerConfig contains HTTP server configuration for the report server.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/analysis.log"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir      string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	OutputDir    string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"output"`
	LogsDir      string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
	ReferenceDir string `yaml:"reference_dir" envconfig:"REFERENCE_DIR" default:"data/reference"`
	ArchiveFile  string `yaml:"archive_file" envconfig:"ARCHIVE_FILE" default:"data/runs.db"`
}

// Load loads configuration from environment variables (GHG_ prefix) and an
// optional YAML config file, environment taking precedence.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("GHG", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := findConfigFile(); configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge merges file config with env config (env takes precedence).
func merge(fileCfg, envCfg Config) Config {
	if envCfg.Source.EPABaseURL == "" {
		envCfg.Source.EPABaseURL = fileCfg.Source.EPABaseURL
	}
	if envCfg.Source.DefaultTable == "" {
		envCfg.Source.DefaultTable = fileCfg.Source.DefaultTable
	}
	if envCfg.Source.BatchSize == 0 {
		envCfg.Source.BatchSize = fileCfg.Source.BatchSize
	}
	if envCfg.Source.Timeout == 0 {
		envCfg.Source.Timeout = fileCfg.Source.Timeout
	}
	if envCfg.Source.MaxRetries == 0 {
		envCfg.Source.MaxRetries = fileCfg.Source.MaxRetries
	}
	if envCfg.Server.Port == 0 {
		envCfg.Server.Port = fileCfg.Server.Port
	}
	if envCfg.Logging.FilePath == "" {
		envCfg.Logging.FilePath = fileCfg.Logging.FilePath
	}
	if envCfg.Paths.OutputDir == "" {
		envCfg.Paths.OutputDir = fileCfg.Paths.OutputDir
	}
	return envCfg
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Source.BatchSize <= 0 {
		return fmt.Errorf("source batch size must be positive, got %d", c.Source.BatchSize)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source timeout must be positive")
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("source max retries must not be negative")
	}
	if c.Pipeline.MinYear < 1900 {
		return fmt.Errorf("pipeline min year %d is implausible", c.Pipeline.MinYear)
	}
	if c.Pipeline.MaxQuantity <= 0 {
		return fmt.Errorf("pipeline max quantity must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = "json"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/analysis.log"
	}
	return nil
}

// MaxYear is the upper bound of the supported reporting-year range.
// Sources publish preliminary data for the year in progress, so one year
// past the current one is still accepted.
func (c *Config) MaxYear(now time.Time) int {
	return now.Year() + 1
}

// findConfigFile returns the path to the config file
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			EPABaseURL:   "https://data.epa.gov/efservice",
			DefaultTable: "pub_facts_sector_ghg_emission",
			BatchSize:    1000,
			Timeout:      30 * time.Second,
			MaxRetries:   3,
			RateLimitRPS: 5,
			RawDataDir:   "data/raw",
		},
		Pipeline: PipelineConfig{
			MinYear:     1990,
			MaxQuantity: 1e9,
			TopReasons:  5,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/analysis.log",
		},
		Paths: PathsConfig{
			DataDir:      "data",
			OutputDir:    "output",
			LogsDir:      "logs",
			ReferenceDir: "data/reference",
			ArchiveFile:  "data/runs.db",
		},
	}
}
