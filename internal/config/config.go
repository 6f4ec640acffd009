package config

// GatewayConfig is the root configuration.
type GatewayConfig struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Admin         AdminConfig         `yaml:"admin" json:"admin"`
	Forward       ForwardConfig       `yaml:"forward" json:"forward"`
	Filter        FilterConfig        `yaml:"filter" json:"filter"`
	Replay        ReplayConfig        `yaml:"replay" json:"replay"`
	Metering      MeteringConfig      `yaml:"metering" json:"metering"`
	Directory     DirectoryConfig     `yaml:"directory" json:"directory"`
	Registry      RegistryConfig      `yaml:"registry" json:"registry"`
	Counter       CounterConfig       `yaml:"counter" json:"counter"`
	Database      DatabaseConfig      `yaml:"database" json:"database"`
	Redis         RedisConfig         `yaml:"redis" json:"redis"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ServerConfig configures the gateway listener.
type ServerConfig struct {
	Address     string   `yaml:"address" json:"address"`
	ReadTimeout Duration `yaml:"readTimeout" json:"readTimeout"`
	// WriteTimeout of zero leaves streamed responses unbounded.
	WriteTimeout       Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout        Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout    Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	MaxRequestBodySize int64    `yaml:"maxRequestBodySize" json:"maxRequestBodySize"`
}

// AdminConfig configures the health and metrics listener.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// ForwardConfig configures the backend every admitted request is sent to.
type ForwardConfig struct {
	Target  string   `yaml:"target" json:"target"`
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

// FilterConfig configures admission and authentication.
type FilterConfig struct {
	AllowedOrigins     []string `yaml:"allowedOrigins" json:"allowedOrigins"`
	TrustedProxies     []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`
	ReplayWindow       Duration `yaml:"replayWindow" json:"replayWindow"`
	NonceCeiling       int64    `yaml:"nonceCeiling" json:"nonceCeiling"`
	SignatureAlgorithm string   `yaml:"signatureAlgorithm" json:"signatureAlgorithm"`
}

// ReplayConfig configures optional nonce uniqueness tracking.
type ReplayConfig struct {
	NonceStore NonceStoreConfig `yaml:"nonceStore" json:"nonceStore"`
}

// NonceStoreConfig enables the Redis nonce store.
type NonceStoreConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Prefix  string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// MeteringConfig configures invocation counting.
type MeteringConfig struct {
	Granularity    string        `yaml:"granularity" json:"granularity"`
	Workers        int           `yaml:"workers" json:"workers"`
	QueueSize      int           `yaml:"queueSize" json:"queueSize"`
	CallTimeout    Duration      `yaml:"callTimeout" json:"callTimeout"`
	LogChunks      bool          `yaml:"logChunks" json:"logChunks"`
	MaxLoggedBytes int           `yaml:"maxLoggedBytes" json:"maxLoggedBytes"`
	Breaker        BreakerConfig `yaml:"breaker" json:"breaker"`
}

// BreakerConfig configures the circuit breaker around the counter.
type BreakerConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	MinRequests  uint32   `yaml:"minRequests" json:"minRequests"`
	FailureRatio float64  `yaml:"failureRatio" json:"failureRatio"`
	OpenTimeout  Duration `yaml:"openTimeout" json:"openTimeout"`
	Interval     Duration `yaml:"interval" json:"interval"`
}

// Directory types.
const (
	DirectoryStatic   = "static"
	DirectoryPostgres = "postgres"
	DirectoryVault    = "vault"
)

// DirectoryConfig selects and configures the caller directory.
type DirectoryConfig struct {
	Type    string         `yaml:"type" json:"type"`
	Callers []CallerConfig `yaml:"callers,omitempty" json:"callers,omitempty"`
	Vault   VaultConfig    `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// CallerConfig is a statically configured caller.
type CallerConfig struct {
	ID        int64  `yaml:"id" json:"id"`
	AccessKey string `yaml:"accessKey" json:"accessKey"`
	SecretKey string `yaml:"secretKey" json:"secretKey"`
}

// VaultConfig configures the Vault KV directory.
type VaultConfig struct {
	Address    string   `yaml:"address" json:"address"`
	Token      string   `yaml:"token" json:"token"`
	Mount      string   `yaml:"mount" json:"mount"`
	PathPrefix string   `yaml:"pathPrefix" json:"pathPrefix"`
	Timeout    Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int      `yaml:"maxRetries" json:"maxRetries"`
}

// Registry types.
const (
	RegistryStatic   = "static"
	RegistryPostgres = "postgres"
)

// RegistryConfig selects and configures the interface registry.
type RegistryConfig struct {
	Type       string            `yaml:"type" json:"type"`
	Interfaces []InterfaceConfig `yaml:"interfaces,omitempty" json:"interfaces,omitempty"`
}

// InterfaceConfig is a statically configured interface.
type InterfaceConfig struct {
	ID      int64  `yaml:"id" json:"id"`
	Path    string `yaml:"path" json:"path"`
	Method  string `yaml:"method" json:"method"`
	OwnerID int64  `yaml:"ownerId" json:"ownerId"`
}

// Counter types.
const (
	CounterMemory   = "memory"
	CounterRedis    = "redis"
	CounterPostgres = "postgres"
)

// CounterConfig selects the invocation counter.
type CounterConfig struct {
	Type   string `yaml:"type" json:"type"`
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// DatabaseConfig configures the PostgreSQL connection pool.
type DatabaseConfig struct {
	URL             string   `yaml:"url" json:"url"`
	MaxOpenConns    int      `yaml:"maxOpenConns" json:"maxOpenConns"`
	MaxIdleConns    int      `yaml:"maxIdleConns" json:"maxIdleConns"`
	ConnMaxLifetime Duration `yaml:"connMaxLifetime" json:"connMaxLifetime"`
	// Migrate applies the embedded schema on startup.
	Migrate bool `yaml:"migrate" json:"migrate"`
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
	Insecure     bool    `yaml:"insecure" json:"insecure"`
}

// UsesPostgres reports whether any component needs the database.
func (c *GatewayConfig) UsesPostgres() bool {
	return c.Directory.Type == DirectoryPostgres ||
		c.Registry.Type == RegistryPostgres ||
		c.Counter.Type == CounterPostgres
}

// UsesRedis reports whether any component needs Redis.
func (c *GatewayConfig) UsesRedis() bool {
	return c.Counter.Type == CounterRedis || c.Replay.NonceStore.Enabled
}
