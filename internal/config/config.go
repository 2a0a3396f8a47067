package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// MaxTopicsLimit is the number of topics a single pub/sub connection accepts.
	MaxTopicsLimit = 50

	defaultDBPath     = "db.sqlite3"
	defaultDataDir    = "data"
	defaultConfigPath = "config.yaml"
	defaultPubSubURL  = "wss://pubsub-edge.twitch.tv/v1"
)

type Config struct {
	SecretKey string
	DBPath    string
	DataDir   string
	Tuning    Tuning
}

// Tuning holds the scheduling knobs. Zero values are replaced by defaults.
type Tuning struct {
	MaxTopics         int           `yaml:"max_topics"`
	CandidateInterval time.Duration `yaml:"candidate_interval"`
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	DeadlineTolerance time.Duration `yaml:"deadline_tolerance"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	RetryMaxAttempts  int           `yaml:"retry_max_attempts"`
	MediaTimeout      time.Duration `yaml:"media_timeout"`
	PubSubURL         string        `yaml:"pubsub_url"`
	ChatPresence      bool          `yaml:"chat_presence"`
}

func DefaultTuning() Tuning {
	return Tuning{
		MaxTopics:         MaxTopicsLimit,
		CandidateInterval: 15 * time.Second,
		SchedulerInterval: 15 * time.Second,
		PollInterval:      30 * time.Second,
		HeartbeatInterval: 60 * time.Second,
		DeadlineTolerance: 5 * time.Minute,
		ReconnectDelay:    15 * time.Second,
		PingInterval:      4 * time.Minute,
		RetryDelay:        5 * time.Second,
		MediaTimeout:      45 * time.Second,
		PubSubURL:         defaultPubSubURL,
	}
}

func (t *Tuning) applyDefaults() {
	def := DefaultTuning()

	if t.MaxTopics <= 0 || t.MaxTopics > MaxTopicsLimit {
		t.MaxTopics = def.MaxTopics
	}
	durations := []struct {
		value    *time.Duration
		fallback time.Duration
	}{
		{&t.CandidateInterval, def.CandidateInterval},
		{&t.SchedulerInterval, def.SchedulerInterval},
		{&t.PollInterval, def.PollInterval},
		{&t.HeartbeatInterval, def.HeartbeatInterval},
		{&t.DeadlineTolerance, def.DeadlineTolerance},
		{&t.ReconnectDelay, def.ReconnectDelay},
		{&t.PingInterval, def.PingInterval},
		{&t.RetryDelay, def.RetryDelay},
		{&t.MediaTimeout, def.MediaTimeout},
	}
	for _, d := range durations {
		if *d.value <= 0 {
			*d.value = d.fallback
		}
	}
	if t.RetryMaxDelay < 0 {
		t.RetryMaxDelay = 0
	}
	if t.RetryMaxAttempts < 0 {
		t.RetryMaxAttempts = 0
	}
	if t.PubSubURL == "" {
		t.PubSubURL = def.PubSubURL
	}
}

// LoadTuning reads the YAML tunables file. A missing file yields the defaults.
func LoadTuning(path string) (Tuning, error) {
	var t Tuning

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return t, fmt.Errorf("error reading %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &t); err != nil {
			return t, fmt.Errorf("error parsing %s: %w", path, err)
		}
	}

	t.applyDefaults()
	return t, nil
}

func Load() (*Config, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := &Config{
		SecretKey: os.Getenv("DF_SECRET_KEY"),
		DBPath:    envOr("DF_DB_PATH", defaultDBPath),
		DataDir:   envOr("DF_DATA_DIR", defaultDataDir),
	}

	cfg.Tuning, err = LoadTuning(envOr("DF_CONFIG", defaultConfigPath))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) ClaimedDropsPath() string {
	return filepath.Join(c.DataDir, "claimed_drops.json")
}

func (c *Config) ProgressLogPath() string {
	return filepath.Join(c.DataDir, "progress.csv")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
