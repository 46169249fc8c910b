package domain

import "time"

// Config holds the complete service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Scoring pipeline parameters
	Scoring ScoringConfig `json:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ScoringConfig holds the tunable parameters of the scoring pipeline.
// Weights and thresholds are versioned deployment configuration, never
// adjusted per request.
type ScoringConfig struct {
	// ArtifactDir is the directory holding the trained model bundle.
	ArtifactDir string `json:"artifactDir"`

	// AnomalyWeight and ClassifierWeight are the fixed ensemble weights.
	// They must sum to 1.
	AnomalyWeight    float64 `json:"anomalyWeight"`
	ClassifierWeight float64 `json:"classifierWeight"`

	// Threshold separates flagged from passed transactions.
	Threshold float64 `json:"threshold"`

	// ReviewBand widens the decision into a MEDIUM/REVIEW band of
	// [Threshold-ReviewBand, Threshold). Zero disables the band.
	ReviewBand float64 `json:"reviewBand"`

	// TopK is how many attribution contributions are surfaced.
	TopK int `json:"topK"`

	// ExplainFlagged computes an attribution automatically for flagged
	// transactions even when the caller did not request one.
	ExplainFlagged bool `json:"explainFlagged"`

	// RequestTimeout is the per-request budget in milliseconds.
	RequestTimeout int `json:"requestTimeout"`

	// BatchMaxSize bounds the number of transactions per batch request.
	BatchMaxSize int `json:"batchMaxSize"`

	// BatchWorkers bounds concurrent per-transaction pipelines in a batch.
	BatchWorkers int `json:"batchWorkers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Scoring: ScoringConfig{
			ArtifactDir:      "./models",
			AnomalyWeight:    0.3,
			ClassifierWeight: 0.7,
			Threshold:        0.7,
			ReviewBand:       0.2,
			TopK:             5,
			ExplainFlagged:   true,
			RequestTimeout:   2000,
			BatchMaxSize:     500,
			BatchWorkers:     8,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./frauddetect.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "frauddetect",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "frauddetect",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
