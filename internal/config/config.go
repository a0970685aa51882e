package config

import (
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config holds the full application configuration.
type Config struct {
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Schedule ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
	Payload  PayloadConfig  `yaml:"payload" mapstructure:"payload"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the per-tool AFM directory trees.
type DataConfig struct {
	Root            string   `yaml:"root" mapstructure:"root"`
	DefaultTool     string   `yaml:"default_tool" mapstructure:"default_tool"`
	Tools           []string `yaml:"tools" mapstructure:"tools"`
	AuditDuplicates bool     `yaml:"audit_duplicates" mapstructure:"audit_duplicates"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                   int      `yaml:"port" mapstructure:"port"`
	CORSOrigins            []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RebuildMinIntervalSecs int      `yaml:"rebuild_min_interval_secs" mapstructure:"rebuild_min_interval_secs"`
}

// ScheduleConfig configures the background cache refresher.
type ScheduleConfig struct {
	Enabled             bool `yaml:"enabled" mapstructure:"enabled"`
	RebuildIntervalMins int  `yaml:"rebuild_interval_mins" mapstructure:"rebuild_interval_mins"`
	HealthIntervalMins  int  `yaml:"health_interval_mins" mapstructure:"health_interval_mins"`
}

// PayloadConfig configures the in-memory payload cache.
type PayloadConfig struct {
	CacheEntries int `yaml:"cache_entries" mapstructure:"cache_entries"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path looks for an
// optional config.yaml in the working directory; a named file must exist.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("AFM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.root", "itc-afm-data-platform-pjt-shared/AFM_DB")
	v.SetDefault("data.default_tool", "MAP608")
	v.SetDefault("data.tools", []string{"MAP608", "MAPC01"})
	v.SetDefault("data.audit_duplicates", false)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("server.rebuild_min_interval_secs", 60)
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.rebuild_interval_mins", 60)
	v.SetDefault("schedule.health_interval_mins", 30)
	v.SetDefault("payload.cache_entries", 256)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the configuration for the given mode: "serve" needs the
// data tree and a listen port, "cache" only the data tree.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "cache":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if strings.TrimSpace(c.Data.Root) == "" {
		problems = append(problems, "data.root is required")
	}
	if len(c.Data.Tools) == 0 {
		problems = append(problems, "data.tools must list at least one tool")
	}
	for _, tool := range c.Data.Tools {
		if !toolNamePattern.MatchString(tool) {
			problems = append(problems, "data.tools: invalid tool name "+tool)
		}
	}
	if !c.HasTool(c.Data.DefaultTool) {
		problems = append(problems, "data.default_tool must be one of data.tools")
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// HasTool reports whether tool is a configured tool.
func (c *Config) HasTool(tool string) bool {
	for _, t := range c.Data.Tools {
		if t == tool {
			return true
		}
	}
	return false
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
