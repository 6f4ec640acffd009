package config

import "time"

// Default values.
const (
	DefaultServerAddress   = ":8090"
	DefaultAdminAddress    = ":9090"
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxBodySize     = 10 << 20
	DefaultForwardTimeout  = 30 * time.Second
	DefaultReplayWindow    = 5 * time.Minute
	DefaultNonceCeiling    = 10000
	DefaultWorkers         = 4
	DefaultQueueSize       = 1024
	DefaultCallTimeout     = 2 * time.Second
	DefaultMaxLoggedBytes  = 512
)

// DefaultConfig returns a configuration with every default applied. It admits
// only loopback callers.
func DefaultConfig() *GatewayConfig {
	cfg := &GatewayConfig{
		Admin:  AdminConfig{Enabled: true},
		Filter: FilterConfig{AllowedOrigins: []string{"127.0.0.1"}},
		Metering: MeteringConfig{
			Breaker: BreakerConfig{Enabled: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields in place.
func ApplyDefaults(cfg *GatewayConfig) {
	setDefault(&cfg.Server.Address, DefaultServerAddress)
	setDurationDefault(&cfg.Server.ReadTimeout, DefaultReadTimeout)
	setDurationDefault(&cfg.Server.IdleTimeout, DefaultIdleTimeout)
	setDurationDefault(&cfg.Server.ShutdownTimeout, DefaultShutdownTimeout)
	if cfg.Server.MaxRequestBodySize == 0 {
		cfg.Server.MaxRequestBodySize = DefaultMaxBodySize
	}

	setDefault(&cfg.Admin.Address, DefaultAdminAddress)
	setDurationDefault(&cfg.Forward.Timeout, DefaultForwardTimeout)

	setDurationDefault(&cfg.Filter.ReplayWindow, DefaultReplayWindow)
	if cfg.Filter.NonceCeiling == 0 {
		cfg.Filter.NonceCeiling = DefaultNonceCeiling
	}
	setDefault(&cfg.Filter.SignatureAlgorithm, "sha256")

	m := &cfg.Metering
	setDefault(&m.Granularity, "chunk")
	if m.Workers == 0 {
		m.Workers = DefaultWorkers
	}
	if m.QueueSize == 0 {
		m.QueueSize = DefaultQueueSize
	}
	setDurationDefault(&m.CallTimeout, DefaultCallTimeout)
	if m.MaxLoggedBytes == 0 {
		m.MaxLoggedBytes = DefaultMaxLoggedBytes
	}
	if m.Breaker.MinRequests == 0 {
		m.Breaker.MinRequests = 10
	}
	if m.Breaker.FailureRatio == 0 {
		m.Breaker.FailureRatio = 0.5
	}
	setDurationDefault(&m.Breaker.OpenTimeout, 30*time.Second)
	setDurationDefault(&m.Breaker.Interval, 60*time.Second)

	setDefault(&cfg.Directory.Type, DirectoryStatic)
	setDefault(&cfg.Directory.Vault.Mount, "secret")
	setDefault(&cfg.Directory.Vault.PathPrefix, "openapigw/callers")
	setDurationDefault(&cfg.Directory.Vault.Timeout, 5*time.Second)
	setDefault(&cfg.Registry.Type, RegistryStatic)
	setDefault(&cfg.Counter.Type, CounterMemory)

	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	setDurationDefault(&cfg.Database.ConnMaxLifetime, 5*time.Minute)
	setDefault(&cfg.Redis.Address, "localhost:6379")

	setDefault(&cfg.Observability.Logging.Level, "info")
	setDefault(&cfg.Observability.Logging.Format, "json")
	setDefault(&cfg.Observability.Logging.Output, "stdout")
	setDefault(&cfg.Observability.Tracing.ServiceName, "openapigw")
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setDurationDefault(field *Duration, value time.Duration) {
	if *field == 0 {
		*field = Duration(value)
	}
}
