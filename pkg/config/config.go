// Package config loads and validates harness configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Retrieval, Input, Output, Evaluation, Ledger, Redis, Kafka, etc.).
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
)

// Config is the top-level harness configuration.
type Config struct {
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Input      InputConfig      `yaml:"input"`
	Output     OutputConfig     `yaml:"output"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Report     ReportConfig     `yaml:"report"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// RetrievalConfig selects the analyzer, ranking models and their constants.
type RetrievalConfig struct {
	BuildTokenizer  string   `yaml:"buildTokenizer"`
	QueryTokenizer  string   `yaml:"queryTokenizer"`
	TopK            int      `yaml:"topK"`
	BM25K1          float64  `yaml:"bm25K1"`
	BM25B           float64  `yaml:"bm25B"`
	DirichletMu     float64  `yaml:"dirichletMu"`
	CosineNormalize bool     `yaml:"cosineNormalize"`
	RawIDF          bool     `yaml:"rawIdf"`
	Models          []string `yaml:"models"`
	Workers         int      `yaml:"workers"`
}

// InputConfig points at the collection, query batch and relevance judgments.
type InputConfig struct {
	Collection string `yaml:"collection"`
	Queries    string `yaml:"queries"`
	Judgments  string `yaml:"judgments"`
}

// OutputConfig controls where result files go and how lines are tagged.
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	Tag         string `yaml:"tag"`
	DocIDOffset int    `yaml:"docIdOffset"`
}

// EvaluationConfig describes the external judged-relevance tool.
type EvaluationConfig struct {
	Enabled bool          `yaml:"enabled"`
	Binary  string        `yaml:"binary"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

type ReportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LedgerConfig selects the SQL store that records runs.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"`
	Path    string `yaml:"path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the textfile export and the optional status server.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
	Port     int    `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults. The result is not validated;
// call Validate before use.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeFile rejects keys that match no field, so a misspelt parameter fails
// loudly instead of silently running with its default.
func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("parsing config file %s", path), err)
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Retrieval: RetrievalConfig{
			BuildTokenizer: "standard",
			QueryTokenizer: "standard",
			TopK:           50,
			BM25K1:         1.2,
			BM25B:          0.75,
			DirichletMu:    2000,
			Models:         []string{"BM25", "TFIDF", "LMDirichlet"},
		},
		Input: InputConfig{
			Collection: "cran/cran.all.1400",
			Queries:    "cran/cran.qry",
			Judgments:  "cran/cranqrel",
		},
		Output: OutputConfig{
			Dir: "results",
			Tag: "STANDARD",
		},
		Evaluation: EvaluationConfig{
			Enabled: true,
			Binary:  "trec_eval",
			Timeout: 2 * time.Minute,
		},
		Report: ReportConfig{
			Path: "results/report.xlsx",
		},
		Ledger: LedgerConfig{
			Driver: "sqlite3",
			Path:   "results/ledger.db",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "harness",
			User:            "harness",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "retrieval-runs",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects configurations the harness cannot run with. Model names
// are checked by the ranker at startup; here the tokenizers and the
// cross-field rules are enforced.
func (c *Config) Validate() error {
	r := c.Retrieval
	build, err := tokenizer.ParseMode(r.BuildTokenizer)
	if err != nil {
		return err
	}
	query, err := tokenizer.ParseMode(r.QueryTokenizer)
	if err != nil {
		return err
	}
	if err := tokenizer.CheckCompatible(build, query); err != nil {
		return err
	}
	for name, v := range map[string]float64{"bm25K1": r.BM25K1, "bm25B": r.BM25B, "dirichletMu": r.DirichletMu} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return apperrors.Newf(apperrors.ErrInvalidInput, "%s must be a finite number, got %v", name, v)
		}
	}
	if r.TopK < 1 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "topK must be at least 1, got %d", r.TopK)
	}
	if r.BM25K1 < 0 || r.BM25B < 0 || r.BM25B > 1 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "bm25 parameters out of range: k1=%v b=%v", r.BM25K1, r.BM25B)
	}
	if r.DirichletMu <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "dirichletMu must be positive, got %v", r.DirichletMu)
	}
	if len(r.Models) == 0 {
		return apperrors.New(apperrors.ErrInvalidInput, "at least one ranking model must be configured")
	}
	if r.Workers < 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "workers must not be negative, got %d", r.Workers)
	}
	if c.Output.Dir == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "output dir is required")
	}
	if c.Output.DocIDOffset < 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "docIdOffset must not be negative, got %d", c.Output.DocIDOffset)
	}
	if c.Evaluation.Enabled && c.Evaluation.Binary == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "evaluation enabled but no binary configured")
	}
	if c.Ledger.Enabled {
		switch c.Ledger.Driver {
		case "sqlite3", "postgres":
		default:
			return apperrors.Newf(apperrors.ErrInvalidInput, "unknown ledger driver %q", c.Ledger.Driver)
		}
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return apperrors.New(apperrors.ErrInvalidInput, "kafka enabled but brokers or topic missing")
	}
	return nil
}

type envBinding struct {
	name string
	set  func(cfg *Config, v string) error
}

func envString(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func envInt(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func envFloat(field func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}
}

func envList(field func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*field(cfg) = items
		return nil
	}
}

var envBindings = []envBinding{
	{"RH_TOKENIZER", func(cfg *Config, v string) error {
		cfg.Retrieval.BuildTokenizer, cfg.Retrieval.QueryTokenizer = v, v
		return nil
	}},
	{"RH_TOP_K", envInt(func(c *Config) *int { return &c.Retrieval.TopK })},
	{"RH_BM25_K1", envFloat(func(c *Config) *float64 { return &c.Retrieval.BM25K1 })},
	{"RH_BM25_B", envFloat(func(c *Config) *float64 { return &c.Retrieval.BM25B })},
	{"RH_DIRICHLET_MU", envFloat(func(c *Config) *float64 { return &c.Retrieval.DirichletMu })},
	{"RH_MODELS", envList(func(c *Config) *[]string { return &c.Retrieval.Models })},
	{"RH_WORKERS", envInt(func(c *Config) *int { return &c.Retrieval.Workers })},
	{"RH_COLLECTION", envString(func(c *Config) *string { return &c.Input.Collection })},
	{"RH_QUERIES", envString(func(c *Config) *string { return &c.Input.Queries })},
	{"RH_JUDGMENTS", envString(func(c *Config) *string { return &c.Input.Judgments })},
	{"RH_OUTPUT_DIR", envString(func(c *Config) *string { return &c.Output.Dir })},
	{"RH_EVAL_BINARY", envString(func(c *Config) *string { return &c.Evaluation.Binary })},
	{"RH_POSTGRES_HOST", envString(func(c *Config) *string { return &c.Postgres.Host })},
	{"RH_POSTGRES_PASSWORD", envString(func(c *Config) *string { return &c.Postgres.Password })},
	{"RH_KAFKA_BROKERS", envList(func(c *Config) *[]string { return &c.Kafka.Brokers })},
	{"RH_REDIS_ADDR", envString(func(c *Config) *string { return &c.Redis.Addr })},
	{"RH_REDIS_PASSWORD", envString(func(c *Config) *string { return &c.Redis.Password })},
	{"RH_LOGGING_LEVEL", envString(func(c *Config) *string { return &c.Logging.Level })},
	{"RH_LOGGING_FORMAT", envString(func(c *Config) *string { return &c.Logging.Format })},
	{"RH_METRICS_PORT", envInt(func(c *Config) *int { return &c.Metrics.Port })},
}

// applyEnvOverrides applies every set RH_* variable on top of cfg. An empty
// variable counts as unset; an unparsable one is a configuration error.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("environment %s=%q", b.name, v), err)
		}
	}
	return nil
}
