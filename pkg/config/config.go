// Package config holds driver-wide configuration: the per-instance options
// recognized by spec §6.6, and a small set of process-wide defaults built
// the same way the teacher's pkg/config/executor_mode.go built its executor
// selection flag — an atomic.Value holding the current default, seeded from
// an environment variable, with a With*-style helper that scopes an override
// to a test and restores the previous value on cleanup.
package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/bolt-core/pkg/boltlog"
)

// Trust selects the server-certificate trust strategy (spec §6.6).
type Trust string

const (
	TrustAllCertificates          Trust = "TRUST_ALL_CERTIFICATES"
	TrustSystemCASignedCertificates Trust = "TRUST_SYSTEM_CA_SIGNED_CERTIFICATES"
	TrustCustomCASignedCertificates Trust = "TRUST_CUSTOM_CA_SIGNED_CERTIFICATES"
)

// Resolver expands a seed address into candidate endpoints, the
// user-supplied alternative to DNS resolution (spec §4.6 step 2b).
type Resolver func(address string) ([]string, error)

// Config is the set of recognized driver options (spec §6.6). The zero
// value is invalid; use New to apply defaults.
type Config struct {
	Encrypted                bool
	Trust                    Trust
	TrustedCertificates      []string
	KnownHosts               string
	MaxConnectionPoolSize    int
	MaxConnectionLifetime    time.Duration
	ConnectionAcquisitionTimeout time.Duration
	MaxTransactionRetryTime  time.Duration
	ConnectionTimeout        time.Duration
	DisableLosslessIntegers  bool
	UserAgent                string
	Logger                   logr.Logger
	Resolver                 Resolver
	TelemetryDisabled        bool
}

// Option mutates a Config under construction.
type Option func(*Config)

// New builds a Config from process-wide defaults overlaid with opts.
func New(opts ...Option) *Config {
	c := &Config{
		Encrypted:                    false,
		Trust:                        TrustSystemCASignedCertificates,
		MaxConnectionPoolSize:        100,
		MaxConnectionLifetime:        1 * time.Hour,
		ConnectionAcquisitionTimeout: 60 * time.Second,
		MaxTransactionRetryTime:      30 * time.Second,
		ConnectionTimeout:            30 * time.Second,
		DisableLosslessIntegers:      false,
		UserAgent:                    DefaultUserAgent(),
		Logger:                       boltlog.Default(),
		TelemetryDisabled:            defaultTelemetryDisabled.Load().(bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger.GetSink() == nil {
		c.Logger = boltlog.Default()
	}
	return c
}

func WithEncrypted(v bool) Option                 { return func(c *Config) { c.Encrypted = v } }
func WithTrust(t Trust) Option                    { return func(c *Config) { c.Trust = t } }
func WithMaxConnectionPoolSize(n int) Option       { return func(c *Config) { c.MaxConnectionPoolSize = n } }
func WithMaxConnectionLifetime(d time.Duration) Option {
	return func(c *Config) { c.MaxConnectionLifetime = d }
}
func WithConnectionAcquisitionTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectionAcquisitionTimeout = d }
}
func WithMaxTransactionRetryTime(d time.Duration) Option {
	return func(c *Config) { c.MaxTransactionRetryTime = d }
}
func WithConnectionTimeout(d time.Duration) Option { return func(c *Config) { c.ConnectionTimeout = d } }
func WithDisableLosslessIntegers(v bool) Option {
	return func(c *Config) { c.DisableLosslessIntegers = v }
}
func WithUserAgent(s string) Option        { return func(c *Config) { c.UserAgent = s } }
func WithLogger(l logr.Logger) Option      { return func(c *Config) { c.Logger = l } }
func WithResolver(r Resolver) Option       { return func(c *Config) { c.Resolver = r } }
func WithTelemetryDisabled(v bool) Option  { return func(c *Config) { c.TelemetryDisabled = v } }

// defaultTelemetryDisabled mirrors the teacher's executor_mode.go: a process
// default, overridable per-environment, without plumbing a flag through
// every call site.
var defaultTelemetryDisabled atomic.Value

func init() {
	defaultTelemetryDisabled.Store(os.Getenv("BOLT_CORE_DISABLE_TELEMETRY") == "true")
}

// SetDefaultTelemetryDisabled changes the process-wide default used by New
// when WithTelemetryDisabled is not supplied.
func SetDefaultTelemetryDisabled(v bool) {
	defaultTelemetryDisabled.Store(v)
}

// WithDefaultTelemetryDisabledForTest sets the process default for the
// duration of a test, restoring the previous value via t.Cleanup.
func WithDefaultTelemetryDisabledForTest(t interface{ Cleanup(func()) }, v bool) {
	prev := defaultTelemetryDisabled.Load().(bool)
	defaultTelemetryDisabled.Store(v)
	t.Cleanup(func() { defaultTelemetryDisabled.Store(prev) })
}

// DefaultUserAgent returns the module's default Bolt user agent string.
func DefaultUserAgent() string {
	return "bolt-core/1.0"
}

// fileConfig mirrors Config's fields in their YAML-serializable form, since
// time.Duration and logr.Logger don't round-trip through yaml.v3 directly.
type fileConfig struct {
	Encrypted                    bool     `yaml:"encrypted"`
	Trust                        string   `yaml:"trust"`
	TrustedCertificates          []string `yaml:"trustedCertificates"`
	KnownHosts                   string   `yaml:"knownHosts"`
	MaxConnectionPoolSize        int      `yaml:"maxConnectionPoolSize"`
	MaxConnectionLifetimeMs      int64    `yaml:"maxConnectionLifetime"`
	ConnectionAcquisitionTimeoutMs int64  `yaml:"connectionAcquisitionTimeout"`
	MaxTransactionRetryTimeMs    int64    `yaml:"maxTransactionRetryTime"`
	ConnectionTimeoutMs          int64    `yaml:"connectionTimeout"`
	DisableLosslessIntegers      bool     `yaml:"disableLosslessIntegers"`
	UserAgent                    string   `yaml:"userAgent"`
	TelemetryDisabled            bool     `yaml:"telemetryDisabled"`
}

// LoadFile parses a YAML options file into a Config, applying opts on top
// (so callers can still override, e.g., the Logger, which has no YAML
// representation). This is the in-scope slice of "configuration parsing"
// spec §1 allows: turning a recognized-options file into a Config, not the
// benchmark harness's own CLI flags.
func LoadFile(path string, opts ...Option) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	base := []Option{
		WithEncrypted(fc.Encrypted),
		WithMaxConnectionLifetime(time.Duration(fc.MaxConnectionLifetimeMs) * time.Millisecond),
		WithConnectionAcquisitionTimeout(time.Duration(fc.ConnectionAcquisitionTimeoutMs) * time.Millisecond),
		WithMaxTransactionRetryTime(time.Duration(fc.MaxTransactionRetryTimeMs) * time.Millisecond),
		WithConnectionTimeout(time.Duration(fc.ConnectionTimeoutMs) * time.Millisecond),
		WithDisableLosslessIntegers(fc.DisableLosslessIntegers),
		WithTelemetryDisabled(fc.TelemetryDisabled),
	}
	if fc.Trust != "" {
		base = append(base, WithTrust(Trust(fc.Trust)))
	}
	if fc.MaxConnectionPoolSize > 0 {
		base = append(base, WithMaxConnectionPoolSize(fc.MaxConnectionPoolSize))
	}
	if fc.UserAgent != "" {
		base = append(base, WithUserAgent(fc.UserAgent))
	}
	return New(append(base, opts...)...), nil
}
