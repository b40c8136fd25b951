package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/teris-io/shortid"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr    = ":8080"
	defaultDatasetPath   = "nutrition_activity_obesity_usa_subset.csv"
	defaultResultBackend = "file"
	defaultResultsDir    = "results"
	defaultDBPath        = "nutristat.db"

	// Log file rotation: 10 MB per file, five backups, UTC backup names.
	logMaxSizeMB  = 10
	logMaxBackups = 5

	envConfigFile    = "NUTRISTAT_CONFIG"
	envListenAddr    = "NUTRISTAT_LISTEN_ADDR"
	envDatasetPath   = "NUTRISTAT_DATASET"
	envQuestionsPath = "NUTRISTAT_QUESTIONS"
	envResultBackend = "NUTRISTAT_RESULT_BACKEND"
	envResultsDir    = "NUTRISTAT_RESULTS_DIR"
	envDBPath        = "NUTRISTAT_DB_PATH"
	envWorkers       = "NUTRISTAT_WORKERS"
	envLogLevel      = "NUTRISTAT_LOG_LEVEL"
	envLogFile       = "NUTRISTAT_LOG_FILE"
	envNodeID        = "NUTRISTAT_NODE_ID"

	// envLegacyWorkers is honored when NUTRISTAT_WORKERS is unset.
	envLegacyWorkers = "TP_NUM_OF_THREADS"
)

// Config holds application configuration. Values come from an optional
// YAML file, then environment variables, then defaults.
type Config struct {
	ListenAddr    string
	DatasetPath   string
	QuestionsPath string
	ResultBackend string
	ResultsDir    string
	DBPath        string
	// Workers is the worker pool size; 0 means one per CPU.
	Workers  int
	LogLevel slog.Level
	LogFile  string
	NodeID   string
}

// fileConfig mirrors Config for YAML decoding.
type fileConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	DatasetPath   string `yaml:"dataset_path"`
	QuestionsPath string `yaml:"questions_path"`
	ResultBackend string `yaml:"result_backend"`
	ResultsDir    string `yaml:"results_dir"`
	DBPath        string `yaml:"db_path"`
	Workers       int    `yaml:"workers"`
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	NodeID        string `yaml:"node_id"`
}

// Load reads configuration from the file named by NUTRISTAT_CONFIG, if any,
// and from environment variables, which take precedence.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DatasetPath:   defaultDatasetPath,
		ResultBackend: defaultResultBackend,
		ResultsDir:    defaultResultsDir,
		DBPath:        defaultDBPath,
		LogLevel:      slog.LevelInfo,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDatasetPath); v != "" {
		cfg.DatasetPath = v
	}
	if v := os.Getenv(envQuestionsPath); v != "" {
		cfg.QuestionsPath = v
	}
	if v := os.Getenv(envResultBackend); v != "" {
		cfg.ResultBackend = v
	}
	if v := os.Getenv(envResultsDir); v != "" {
		cfg.ResultsDir = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := firstEnv(envWorkers, envLegacyWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid worker count %q", v)
		}
		cfg.Workers = n
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envLogFile); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv(envNodeID); v != "" {
		cfg.NodeID = v
	}

	if cfg.NodeID == "" {
		id, err := shortid.Generate()
		if err != nil {
			return Config{}, fmt.Errorf("generate node id: %w", err)
		}
		cfg.NodeID = id
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.Workers < 0 {
		return fmt.Errorf("config file %s: workers must not be negative", path)
	}

	setString(&c.ListenAddr, fc.ListenAddr)
	setString(&c.DatasetPath, fc.DatasetPath)
	setString(&c.QuestionsPath, fc.QuestionsPath)
	setString(&c.ResultBackend, fc.ResultBackend)
	setString(&c.ResultsDir, fc.ResultsDir)
	setString(&c.DBPath, fc.DBPath)
	setString(&c.LogFile, fc.LogFile)
	setString(&c.NodeID, fc.NodeID)
	if fc.Workers > 0 {
		c.Workers = fc.Workers
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// LogOutput returns the writer for the process log: stdout, mirrored to a
// size-rotated file at path when path is set. The returned close function
// releases the file.
func LogOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f := rotatingFile(path, logMaxSizeMB)
	// Open eagerly so a bad path fails at startup, not on the first entry.
	if _, err := f.Write(nil); err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return io.MultiWriter(os.Stdout, f), f.Close, nil
}

func rotatingFile(path string, maxSizeMB int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: logMaxBackups,
	}
}
