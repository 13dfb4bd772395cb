package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Node     NodeConfig     `mapstructure:"node"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Raft     RaftConfig     `mapstructure:"raft"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Queries  []QueryConfig  `mapstructure:"queries"`
}

type NodeConfig struct {
	ID             string `mapstructure:"id"`
	DataDir        string `mapstructure:"data_dir"`
	HostIdentifier string `mapstructure:"host_identifier"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RaftConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	BindAddr     string            `mapstructure:"bind_addr"`
	Bootstrap    bool              `mapstructure:"bootstrap"`
	PeerAddrs    map[string]string `mapstructure:"peer_addrs"`
	ApplyTimeout string            `mapstructure:"apply_timeout"`
}

type LoggerConfig struct {
	ResultsPath   string `mapstructure:"results_path"`
	Level         string `mapstructure:"level"`
	LogEmptyDiffs bool   `mapstructure:"log_empty_diffs"`
}

type QueryConfig struct {
	Name     string `mapstructure:"name"`
	SQL      string `mapstructure:"sql"`
	Interval string `mapstructure:"interval"`
	Mode     string `mapstructure:"mode"`
}

// StdoutPath sends results to standard output instead of a file.
const StdoutPath = "-"

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if expanded := os.ExpandEnv(val); expanded != val {
			v.Set(key, expanded)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks required fields and fills defaults in place.
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id is required")
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}
	if c.Node.HostIdentifier == "" {
		c.Node.HostIdentifier = "hostname"
	}

	switch c.Storage.Backend {
	case "":
		c.Storage.Backend = "bolt"
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("invalid storage backend: %s (valid options: bolt, sqlite)", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.Node.DataDir, "rowdiff."+c.Storage.Backend)
	}

	if c.Raft.Enabled && c.Raft.BindAddr == "" {
		return fmt.Errorf("raft.bind_addr is required when raft is enabled")
	}
	if c.Raft.ApplyTimeout != "" {
		if _, err := time.ParseDuration(c.Raft.ApplyTimeout); err != nil {
			return fmt.Errorf("invalid raft.apply_timeout: %w", err)
		}
	}

	if c.Logger.ResultsPath == "" {
		c.Logger.ResultsPath = filepath.Join(c.Node.DataDir, "results.log")
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if _, err := parseLevel(c.Logger.Level); err != nil {
		return err
	}

	if len(c.Queries) > 0 {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}

	seen := make(map[string]bool, len(c.Queries))
	for i := range c.Queries {
		q := &c.Queries[i]
		if q.Name == "" {
			return fmt.Errorf("queries[%d].name is required", i)
		}
		if seen[q.Name] {
			return fmt.Errorf("duplicate query name: %s", q.Name)
		}
		seen[q.Name] = true

		if q.SQL == "" {
			return fmt.Errorf("query %s: sql is required", q.Name)
		}

		if q.Interval == "" {
			q.Interval = "1h"
		}
		d, err := time.ParseDuration(q.Interval)
		if err != nil {
			return fmt.Errorf("query %s: invalid interval: %w", q.Name, err)
		}
		if d <= 0 {
			return fmt.Errorf("query %s: interval must be positive", q.Name)
		}

		switch q.Mode {
		case "":
			q.Mode = "differential"
		case "differential", "snapshot":
		default:
			return fmt.Errorf("query %s: invalid mode: %s (valid options: differential, snapshot)", q.Name, q.Mode)
		}
	}

	return nil
}

func (c *Config) Query(name string) (QueryConfig, bool) {
	for _, q := range c.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return QueryConfig{}, false
}

// IntervalDuration is only meaningful after Validate.
func (q QueryConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(q.Interval)
	return d
}

func (r RaftConfig) ApplyTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(r.ApplyTimeout)
	return d
}

func (l LoggerConfig) SlogLevel() slog.Level {
	level, _ := parseLevel(l.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid logger.level: %s", s)
	}
	return level, nil
}

func (d *DatabaseConfig) ConnectionString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Database, d.User, d.Password, sslMode)
}
