package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Staging   StagingConfig   `yaml:"staging" mapstructure:"staging"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// GoogleConfig holds Google Places API credentials and request pacing.
type GoogleConfig struct {
	Key             string  `yaml:"key" mapstructure:"key"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	PageSize        int     `yaml:"page_size" mapstructure:"page_size"`
	MaxPagesPerCell int     `yaml:"max_pages_per_cell" mapstructure:"max_pages_per_cell"`
}

// FetchConfig configures the grid fetch phase.
type FetchConfig struct {
	GridDim   int     `yaml:"grid_dim" mapstructure:"grid_dim"`
	ResultCap int     `yaml:"result_cap" mapstructure:"result_cap"`
	MinRating float64 `yaml:"min_rating" mapstructure:"min_rating"`
}

// DedupConfig holds the duplicate-detection thresholds and the stopword
// lists used by token normalization. Exposed as configuration so operators
// can retune matching without a rebuild.
type DedupConfig struct {
	StrongDistanceM     float64  `yaml:"strong_distance_m" mapstructure:"strong_distance_m"`
	BorderlineDistanceM float64  `yaml:"borderline_distance_m" mapstructure:"borderline_distance_m"`
	AddressSimilarity   float64  `yaml:"address_similarity" mapstructure:"address_similarity"`
	NameSimilarityNear  float64  `yaml:"name_similarity_near" mapstructure:"name_similarity_near"`
	NameSimilarityFar   float64  `yaml:"name_similarity_far" mapstructure:"name_similarity_far"`
	BorderlineNameFloor float64  `yaml:"borderline_name_floor" mapstructure:"borderline_name_floor"`
	AddressStopwords    []string `yaml:"address_stopwords" mapstructure:"address_stopwords"`
	NameStopwords       []string `yaml:"name_stopwords" mapstructure:"name_stopwords"`
}

// ReferenceConfig locates the curated reference dataset.
type ReferenceConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StagingConfig configures the staging batch database.
type StagingConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StoreConfig holds the dev and prod Place Store connection strings. The
// two stores are independent instances; publishing always targets dev and
// promotion to prod is a separate confirmed operation.
type StoreConfig struct {
	DevURL  string `yaml:"dev_url" mapstructure:"dev_url"`
	ProdURL string `yaml:"prod_url" mapstructure:"prod_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLACES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("google.rate_limit", 5)
	v.SetDefault("google.page_size", 20)
	v.SetDefault("google.max_pages_per_cell", 3)
	v.SetDefault("fetch.grid_dim", 3)
	v.SetDefault("fetch.result_cap", 500)
	v.SetDefault("fetch.min_rating", 0)
	v.SetDefault("dedup.strong_distance_m", 50)
	v.SetDefault("dedup.borderline_distance_m", 100)
	v.SetDefault("dedup.address_similarity", 0.6)
	v.SetDefault("dedup.name_similarity_near", 0.5)
	v.SetDefault("dedup.name_similarity_far", 0.7)
	v.SetDefault("dedup.borderline_name_floor", 0.2)
	v.SetDefault("dedup.address_stopwords", []string{"calle", "avenida", "plaza", "paseo", "de", "del", "la", "el", "los", "las"})
	v.SetDefault("dedup.name_stopwords", []string{"cafe", "cafeteria", "coffee", "shop", "bar", "restaurante", "restaurant"})
	v.SetDefault("staging.path", "staging.db")

	// Unmarshal only surfaces keys viper knows about, so the keys with no
	// natural default must still be registered or their PLACES_* env
	// overrides are silently dropped.
	v.SetDefault("google.key", "")
	v.SetDefault("reference.path", "")
	v.SetDefault("store.dev_url", "")
	v.SetDefault("store.prod_url", "")

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

// Validate checks that the configuration required for a given command scope
// is present. Missing credentials are fatal; commands must not proceed.
func (c *Config) Validate(scope string) error {
	switch scope {
	case "fetch":
		if c.Google.Key == "" {
			return eris.New("config: google.key is required (set PLACES_GOOGLE_KEY)")
		}
	case "publish":
		if c.Store.DevURL == "" {
			return eris.New("config: store.dev_url is required")
		}
	case "promote":
		if c.Store.DevURL == "" {
			return eris.New("config: store.dev_url is required")
		}
		if c.Store.ProdURL == "" {
			return eris.New("config: store.prod_url is required")
		}
	}
	return nil
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
