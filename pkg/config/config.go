package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	ConfigDir string `koanf:"config_dir"`
	DataDir   string `koanf:"data_dir"`
	Hostname  string `koanf:"-"`

	ServerHost string `koanf:"server_host"`
	ServerPort int    `koanf:"server_port"`

	DatabaseFilePath          string        `koanf:"database_file_path"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout"`

	// ThumbnailsDir is where generated thumbnails live. Defaults to
	// DataDir/thumbnails.
	ThumbnailsDir string `koanf:"thumbnails_dir"`

	// WorkerParallelism bounds the pool used for file parsing and image
	// encoding fan-out. Defaults to the number of logical cores.
	WorkerParallelism int           `koanf:"worker_parallelism"`
	TaskDeadline      time.Duration `koanf:"task_deadline"`
	TaskRetryBackoff  time.Duration `koanf:"task_retry_backoff"`
	ShutdownDeadline  time.Duration `koanf:"shutdown_deadline"`
	PersistEveryTasks int           `koanf:"persist_every_tasks"`
	ThumbnailChunk    int           `koanf:"thumbnail_chunk"`

	SchedulerIntervalSecs int `koanf:"scheduler_interval_secs"`

	// PDF page rendering runs through pdfium. When disabled, PDF page and
	// cover extraction report the format as unsupported and thumbnail
	// generation skips PDFs instead of failing.
	PDFRenderingEnabled bool `koanf:"pdf_rendering_enabled"`
	PDFRenderDPI        int  `koanf:"pdf_render_dpi"`
	PDFPoolSize         int  `koanf:"pdf_pool_size"`
}

const environmentENV = "ENVIRONMENT"

// envPrefix is the prefix for environment overrides, e.g.
// STUMP_SERVER_PORT=8080 sets server_port.
const envPrefix = "STUMP_"

func newBaseConfig() *Config {
	return &Config{
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        5,
		DatabaseBusyTimeout:       5 * time.Second,
		ServerPort:                10801,
		WorkerParallelism:         runtime.NumCPU(),
		TaskDeadline:              5 * time.Minute,
		TaskRetryBackoff:          time.Second,
		ShutdownDeadline:          30 * time.Second,
		PersistEveryTasks:         10,
		ThumbnailChunk:            5,
		SchedulerIntervalSecs:     86400,
		PDFRenderingEnabled:       true,
		PDFRenderDPI:              150,
		PDFPoolSize:               1,
	}
}

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := newBaseConfig()
	cfg.Hostname = hostname

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	if err := loadOverrides(cfg); err != nil {
		return nil, err
	}

	if cfg.DatabaseFilePath == "" {
		cfg.DatabaseFilePath = filepath.Join(cfg.DataDir, "stump.sqlite")
	}
	if cfg.ThumbnailsDir == "" {
		cfg.ThumbnailsDir = filepath.Join(cfg.DataDir, "thumbnails")
	}

	return cfg, nil
}

// NewForTest returns a config with test defaults, independent of the process
// environment and any stump.yaml.
func NewForTest() *Config {
	cfg := newBaseConfig()
	cfg.Hostname = "test"
	loadTestConfig(cfg)
	return cfg
}

// loadOverrides layers stump.yaml from the config directory, then
// STUMP_-prefixed environment variables, over the environment defaults.
func loadOverrides(cfg *Config) error {
	k := koanf.New(".")

	configFile := filepath.Join(cfg.ConfigDir, "stump.yaml")
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return errors.Wrapf(err, "failed to parse %s", configFile)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return errors.WithStack(err)
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return errors.WithStack(err)
	}

	return nil
}
