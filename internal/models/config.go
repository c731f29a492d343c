package models

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Log        LogConfig        `yaml:"log"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Auth       AuthConfig       `yaml:"auth"`

	// Categories overrides the built-in keyword table, in priority order
	Categories []CategoryConfig `yaml:"categories"`
}

// CORSConfig lists the browser origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig throttles /api requests. Zero disables the limiter.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// LogConfig configures logrus
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ExtractionConfig tunes the inference and consistency thresholds
type ExtractionConfig struct {
	Tolerance         float64 `yaml:"tolerance"`          // default 0.10
	OverrideThreshold float64 `yaml:"override_threshold"` // default 1.0
	DefaultVATRate    int     `yaml:"default_vat_rate"`   // default 21
	DefaultIRPFRate   int     `yaml:"default_irpf_rate"`  // default 15
}

// DatabaseConfig for the transaction store
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// StorageConfig for the MinIO text archive
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// AuthConfig for bearer tokens on the API
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// CategoryConfig is one row of the classifier table
type CategoryConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}
