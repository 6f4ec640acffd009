package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Path + ": " + e.Message
}

// ValidateConfig checks cfg and returns every problem found, joined.
func ValidateConfig(cfg *GatewayConfig) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	v := &validator{}
	v.validateForward(&cfg.Forward)
	v.validateFilter(&cfg.Filter)
	v.validateMetering(&cfg.Metering)
	v.validateDirectory(&cfg.Directory)
	v.validateRegistry(&cfg.Registry)
	v.validateCounter(&cfg.Counter)

	if cfg.UsesPostgres() && cfg.Database.URL == "" {
		v.add("database.url", "required when a postgres directory, registry or counter is used")
	}
	if cfg.UsesRedis() && cfg.Redis.Address == "" {
		v.add("redis.address", "required when the redis counter or nonce store is used")
	}
	if cfg.Observability.Tracing.Enabled && cfg.Observability.Tracing.OTLPEndpoint == "" {
		v.add("observability.tracing.otlpEndpoint", "required when tracing is enabled")
	}
	if r := cfg.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		v.add("observability.tracing.samplingRate", "must be between 0 and 1")
	}

	return errors.Join(v.errs...)
}

type validator struct {
	errs []error
}

func (v *validator) add(path, format string, args ...interface{}) {
	v.errs = append(v.errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) validateForward(f *ForwardConfig) {
	if f.Target == "" {
		v.add("forward.target", "is required")
		return
	}
	u, err := url.Parse(f.Target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.add("forward.target", "must be an absolute http(s) URL, got %q", f.Target)
	}
}

func (v *validator) validateFilter(f *FilterConfig) {
	for i, origin := range f.AllowedOrigins {
		if !validAddress(origin) {
			v.add(fmt.Sprintf("filter.allowedOrigins[%d]", i), "invalid address or CIDR %q", origin)
		}
	}
	for i, proxy := range f.TrustedProxies {
		if !validAddress(proxy) {
			v.add(fmt.Sprintf("filter.trustedProxies[%d]", i), "invalid address or CIDR %q", proxy)
		}
	}
	if w := f.ReplayWindow.Duration(); w < 0 {
		v.add("filter.replayWindow", "must not be negative")
	} else if w > 0 && w < time.Second {
		v.add("filter.replayWindow", "must be at least 1s, got %s", w)
	}
	if f.NonceCeiling < 0 {
		v.add("filter.nonceCeiling", "must not be negative")
	}
	switch f.SignatureAlgorithm {
	case "sha256", "hmac-sha256":
	default:
		v.add("filter.signatureAlgorithm", "unsupported algorithm %q", f.SignatureAlgorithm)
	}
}

func (v *validator) validateMetering(m *MeteringConfig) {
	switch strings.ToLower(m.Granularity) {
	case "chunk", "request":
	default:
		v.add("metering.granularity", "must be chunk or request, got %q", m.Granularity)
	}
	if m.Workers < 0 {
		v.add("metering.workers", "must not be negative")
	}
	if m.QueueSize < 0 {
		v.add("metering.queueSize", "must not be negative")
	}
	if m.Breaker.FailureRatio < 0 || m.Breaker.FailureRatio > 1 {
		v.add("metering.breaker.failureRatio", "must be between 0 and 1")
	}
}

func (v *validator) validateDirectory(d *DirectoryConfig) {
	switch d.Type {
	case DirectoryStatic:
		seen := make(map[string]bool, len(d.Callers))
		for i, c := range d.Callers {
			path := fmt.Sprintf("directory.callers[%d]", i)
			if c.AccessKey == "" {
				v.add(path+".accessKey", "is required")
			} else if seen[c.AccessKey] {
				v.add(path+".accessKey", "duplicate access key %q", c.AccessKey)
			}
			seen[c.AccessKey] = true
			if c.SecretKey == "" {
				v.add(path+".secretKey", "is required")
			}
		}
	case DirectoryPostgres:
	case DirectoryVault:
		if d.Vault.Address == "" {
			v.add("directory.vault.address", "is required")
		}
		if d.Vault.Mount == "" {
			v.add("directory.vault.mount", "is required")
		}
	default:
		v.add("directory.type", "unknown directory type %q", d.Type)
	}
}

func (v *validator) validateRegistry(r *RegistryConfig) {
	switch r.Type {
	case RegistryStatic:
		type route struct{ path, method string }
		seen := make(map[route]bool, len(r.Interfaces))
		for i, itf := range r.Interfaces {
			path := fmt.Sprintf("registry.interfaces[%d]", i)
			if itf.Path == "" || !strings.HasPrefix(itf.Path, "/") {
				v.add(path+".path", "must start with /")
			}
			if itf.Method == "" {
				v.add(path+".method", "is required")
			}
			key := route{itf.Path, strings.ToUpper(itf.Method)}
			if seen[key] {
				v.add(path, "duplicate interface %s %s", key.method, key.path)
			}
			seen[key] = true
		}
	case RegistryPostgres:
	default:
		v.add("registry.type", "unknown registry type %q", r.Type)
	}
}

func (v *validator) validateCounter(c *CounterConfig) {
	switch c.Type {
	case CounterMemory, CounterRedis, CounterPostgres:
	default:
		v.add("counter.type", "unknown counter type %q", c.Type)
	}
}

func validAddress(s string) bool {
	s = strings.TrimSpace(s)
	if _, _, err := net.ParseCIDR(s); err == nil {
		return true
	}
	return net.ParseIP(s) != nil
}
