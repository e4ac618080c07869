package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/alert-beacon/internal/utils"
)

// Config captures everything both beacon binaries need to boot.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Poll         PollConfig         `yaml:"poll"`
	Aggregation  AggregationConfig  `yaml:"aggregation"`
	Labels       LabelsConfig       `yaml:"labels"`
	Backends     []BackendConfig    `yaml:"backends"`
	Presentation PresentationConfig `yaml:"presentation"`
	Sinks        SinksConfig        `yaml:"sinks"`
	Logging      LoggingConfig      `yaml:"logging"`
	Cache        CacheConfig        `yaml:"cache"`
}

// ServerConfig controls the status HTTP and gRPC listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	AllowOrigin     string        `yaml:"allowOrigin"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// PollConfig controls the aggregator loop.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AggregationConfig selects how backends are walked each cycle.
type AggregationConfig struct {
	Mode string `yaml:"mode"`
}

// Aggregation modes.
const (
	ModeEvaluateAll = "evaluate-all"
	ModeFirstMatch  = "first-match"
)

// LabelsConfig controls the published label map.
type LabelsConfig struct {
	HideClear bool `yaml:"hideClear"`
}

// BackendConfig describes one upstream monitoring backend.
type BackendConfig struct {
	ID       string        `yaml:"id"`
	Kind     string        `yaml:"kind"`
	BaseURL  string        `yaml:"baseURL"`
	Timeout  time.Duration `yaml:"timeout"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Token    string        `yaml:"token"`

	// Alertmanager only.
	AlertsPath string `yaml:"alertsPath"`
	Filter     string `yaml:"filter"`

	// Zabbix only.
	Mode            string `yaml:"mode"`
	Severities      []int  `yaml:"severities"`
	Acknowledged    *bool  `yaml:"acknowledged"`
	LookbackSeconds int    `yaml:"lookbackSeconds"`
	Recent          bool   `yaml:"recent"`
}

// Backend kinds and Zabbix auth modes.
const (
	KindAlertmanager = "alertmanager"
	KindZabbix       = "zabbix"

	ZabbixModeOld = "old"
	ZabbixModeNew = "new"
)

// PresentationConfig controls the display-side poll loop and hysteresis.
type PresentationConfig struct {
	Interval       time.Duration `yaml:"interval"`
	NormalDuration int           `yaml:"normalDuration"`
	ErrorDuration  int           `yaml:"errorDuration"`
	Source         string        `yaml:"source"`
	APIURL         string        `yaml:"apiURL"`
	FilePath       string        `yaml:"filePath"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Snapshot sources the display can read from.
const (
	SourceHTTP   = "http"
	SourceFile   = "file"
	SourceValkey = "valkey"
)

// SinksConfig controls where published snapshots are mirrored.
type SinksConfig struct {
	File FileSinkConfig `yaml:"file"`
}

// FileSinkConfig mirrors snapshots into a JSON file.
type FileSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls the Valkey key that mirrors the published snapshot.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	Key          string        `yaml:"key"`
	SnapshotTTL  time.Duration `yaml:"snapshotTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("BEACON_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyBackendDefaults(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":3000",
			AllowOrigin:     "*",
			GracefulTimeout: 10 * time.Second,
		},
		Poll: PollConfig{
			Interval: 10 * time.Second,
			Timeout:  3 * time.Second,
		},
		Aggregation: AggregationConfig{Mode: ModeEvaluateAll},
		Presentation: PresentationConfig{
			Interval:       10 * time.Second,
			NormalDuration: 3,
			ErrorDuration:  3,
			Source:         SourceHTTP,
			APIURL:         "http://localhost:3000",
			Timeout:        3 * time.Second,
		},
		Sinks: SinksConfig{
			File: FileSinkConfig{Path: "tocka/alerts.json"},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			Key:          "alert-beacon:snapshot",
			SnapshotTTL:  time.Minute,
		},
	}
}

func applyBackendDefaults(cfg *Config) {
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		b.Kind = strings.ToLower(strings.TrimSpace(b.Kind))
		if b.ID == "" {
			b.ID = b.Kind
		}
		if b.Timeout <= 0 {
			b.Timeout = cfg.Poll.Timeout
		}
		switch b.Kind {
		case KindAlertmanager:
			if b.AlertsPath == "" {
				b.AlertsPath = "/api/v2/alerts"
			}
		case KindZabbix:
			b.Mode = strings.ToLower(strings.TrimSpace(b.Mode))
			if b.Mode == "" {
				b.Mode = ZabbixModeNew
			}
			if len(b.Severities) == 0 {
				b.Severities = []int{4, 5}
			}
		}
	}
}

// legacyBackend returns the first configured backend of kind, whatever its id, and appends one
// named after the kind when the file declares none.
func legacyBackend(cfg *Config, kind string) *BackendConfig {
	for i := range cfg.Backends {
		if strings.EqualFold(strings.TrimSpace(cfg.Backends[i].Kind), kind) {
			return &cfg.Backends[i]
		}
	}
	cfg.Backends = append(cfg.Backends, BackendConfig{ID: kind, Kind: kind})
	return &cfg.Backends[len(cfg.Backends)-1]
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BEACON_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		cfg.Server.Address = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("BEACON_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("BEACON_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("BEACON_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Poll.Interval = d
			cfg.Presentation.Interval = d
		}
	}
	// POLL_INTERVAL is in milliseconds and drives both loops.
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Poll.Interval = utils.Millis(ms)
			cfg.Presentation.Interval = cfg.Poll.Interval
		} else {
			cfg.Poll.Interval = 0
		}
	}
	if v := os.Getenv("BEACON_POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Poll.Timeout = d
		}
	}
	if v := os.Getenv("BEACON_AGGREGATION_MODE"); v != "" {
		cfg.Aggregation.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("BEACON_HIDE_CLEAR_LABELS"); v != "" {
		cfg.Labels.HideClear = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("ALERTMANAGER_URL"); v != "" {
		legacyBackend(cfg, KindAlertmanager).BaseURL = v
	}
	if v := os.Getenv("ZABBIX_URL"); v != "" {
		legacyBackend(cfg, KindZabbix).BaseURL = v
	}
	if v := os.Getenv("ZABBIX_TOKEN"); v != "" {
		legacyBackend(cfg, KindZabbix).Token = v
	}
	if v := os.Getenv("ZABBIX_MODE"); v != "" {
		legacyBackend(cfg, KindZabbix).Mode = v
	}
	if v := os.Getenv("ZABBIX_LOOKBACK_SECONDS"); v != "" {
		b := legacyBackend(cfg, KindZabbix)
		if secs, err := strconv.Atoi(v); err == nil {
			b.LookbackSeconds = secs
		} else {
			b.LookbackSeconds = -1
		}
	}

	if v := os.Getenv("API_URL"); v != "" {
		cfg.Presentation.APIURL = v
	}
	if v := os.Getenv("BEACON_DISPLAY_SOURCE"); v != "" {
		cfg.Presentation.Source = strings.ToLower(v)
	}
	if v := os.Getenv("BEACON_NORMAL_DURATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Presentation.NormalDuration = n
		}
	}
	if v := os.Getenv("BEACON_ERROR_DURATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Presentation.ErrorDuration = n
		}
	}
	if v := os.Getenv("BEACON_ALERT_FILE"); v != "" {
		cfg.Sinks.File.Enabled = true
		cfg.Sinks.File.Path = v
		cfg.Presentation.FilePath = v
	}

	if v := os.Getenv("BEACON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BEACON_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}

	if v := os.Getenv("BEACON_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("BEACON_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("BEACON_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("BEACON_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("BEACON_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("BEACON_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("BEACON_CACHE_KEY"); v != "" {
		cfg.Cache.Key = v
	}
	if v := os.Getenv("BEACON_CACHE_SNAPSHOT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SnapshotTTL = d
		}
	}
}
