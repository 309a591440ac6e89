package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ad-reporting-engine/internal/reporting"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Server struct {
		Addr      string `mapstructure:"addr"`
		LogLevel  string `mapstructure:"log_level"`
		LogFormat string `mapstructure:"log_format"`
	} `mapstructure:"server"`

	Postgres struct {
		Host          string `mapstructure:"host"`
		Port          int    `mapstructure:"port"`
		User          string `mapstructure:"user"`
		Password      string `mapstructure:"password"`
		DBName        string `mapstructure:"db_name"`
		SSLMode       string `mapstructure:"ssl_mode"`
		MaxOpenConns  int    `mapstructure:"max_open_conns"`
		MaxIdleConns  int    `mapstructure:"max_idle_conns"`
		RunMigrations bool   `mapstructure:"run_migrations"`
	} `mapstructure:"postgres"`

	Listener struct {
		Channel          string `mapstructure:"channel"`
		ReconnectSeconds int    `mapstructure:"reconnect_seconds"`
	} `mapstructure:"listener"`

	Reporting struct {
		OverallTimeoutMs              int   `mapstructure:"overall_timeout_ms"`
		ScriptTimeoutMs               int   `mapstructure:"script_timeout_ms"`
		FetchTimeoutMs                int   `mapstructure:"fetch_timeout_ms"`
		MaxRegisteredBeaconsTotal     int64 `mapstructure:"max_registered_beacons_total"`
		MaxRegisteredBeaconsPerAdTech int64 `mapstructure:"max_registered_beacons_per_ad_tech"`
		MaxInteractionKeySizeB        int   `mapstructure:"max_interaction_key_size_b"`
		MaxInteractionURISizeB        int   `mapstructure:"max_interaction_uri_size_b"`
		DisableEnrollmentCheck        bool  `mapstructure:"disable_enrollment_check"`
		RegisterAdBeaconEnabled       bool  `mapstructure:"register_ad_beacon_enabled"`
		UseUnifiedTables              bool  `mapstructure:"use_unified_tables"`
		EnforceForeground             bool  `mapstructure:"enforce_foreground"`
		JSCachingEnabled              bool  `mapstructure:"js_caching_enabled"`
	} `mapstructure:"reporting"`

	Filter struct {
		AllowedApps            []string `mapstructure:"allowed_apps"`
		EnrolledAdTechs        []string `mapstructure:"enrolled_ad_techs"`
		RevokedConsentPackages []string `mapstructure:"revoked_consent_packages"`
		RequestsPerSecond      float64  `mapstructure:"requests_per_second"`
		Burst                  int      `mapstructure:"burst"`
	} `mapstructure:"filter"`

	Fetch struct {
		CacheTTLSeconds int   `mapstructure:"cache_ttl_seconds"`
		MaxScriptBytes  int64 `mapstructure:"max_script_bytes"`
		ClientTimeoutMs int   `mapstructure:"client_timeout_ms"`
	} `mapstructure:"fetch"`
}

// Loader reads configuration through a single viper instance so the same
// instance can later watch the file.
type Loader struct{ v *viper.Viper }

// NewLoader prepares viper. An empty file falls back to configs/application.yaml.
func NewLoader(file string, flags *pflag.FlagSet) *Loader {
	v := viper.New()
	defaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("application")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
	}
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	if flags != nil {
		_ = v.BindPFlag("server.addr", flags.Lookup("addr"))
		_ = v.BindPFlag("server.log_level", flags.Lookup("log-level"))
		_ = v.BindPFlag("server.log_format", flags.Lookup("log-format"))
		_ = v.BindPFlag("postgres.run_migrations", flags.Lookup("migrate"))
	}
	return &Loader{v: v}
}

func (l *Loader) Load() (Config, error) {
	_ = l.v.ReadInConfig() // optional; env can fully configure

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to decode config: %w", err)
	}
	validate(&cfg)
	return cfg, nil
}

// Watch reloads the file on change and hands the new config to fn.
func (l *Loader) Watch(fn func(Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.Load()
		if err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("config reload")
			return
		}
		log.Info().Str("file", e.Name).Msg("config reloaded")
		fn(cfg)
	})
	l.v.WatchConfig()
}

func Load() Config {
	cfg, err := NewLoader("", nil).Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func defaults(v *viper.Viper) {
	d := reporting.DefaultFlags()
	v.SetDefault("reporting.register_ad_beacon_enabled", d.RegisterAdBeaconEnabled)
	v.SetDefault("reporting.enforce_foreground", d.EnforceForeground)
	v.SetDefault("reporting.js_caching_enabled", d.JSCachingEnabled)
	v.SetDefault("filter.allowed_apps", []string{"*"})
	v.SetDefault("filter.enrolled_ad_techs", []string{"*"})
}

func validate(c *Config) {
	d := reporting.DefaultFlags()
	if c.Server.Addr == "" { c.Server.Addr = ":8080" }
	if c.Server.LogFormat == "" { c.Server.LogFormat = "console" }
	if c.Postgres.Port == 0 { c.Postgres.Port = 5432 }
	if c.Postgres.SSLMode == "" { c.Postgres.SSLMode = "disable" }
	if c.Postgres.MaxOpenConns == 0 { c.Postgres.MaxOpenConns = 10 }
	if c.Postgres.MaxIdleConns == 0 { c.Postgres.MaxIdleConns = 10 }
	if c.Listener.Channel == "" { c.Listener.Channel = "reporting_override_change" }
	if c.Listener.ReconnectSeconds <= 0 { c.Listener.ReconnectSeconds = 5 }
	if c.Reporting.OverallTimeoutMs <= 0 { c.Reporting.OverallTimeoutMs = int(d.OverallTimeout.Milliseconds()) }
	if c.Reporting.ScriptTimeoutMs <= 0 { c.Reporting.ScriptTimeoutMs = int(d.ScriptTimeout.Milliseconds()) }
	if c.Reporting.FetchTimeoutMs <= 0 { c.Reporting.FetchTimeoutMs = int(d.FetchTimeout.Milliseconds()) }
	if c.Reporting.MaxRegisteredBeaconsTotal <= 0 { c.Reporting.MaxRegisteredBeaconsTotal = d.MaxRegisteredBeaconsTotal }
	if c.Reporting.MaxRegisteredBeaconsPerAdTech <= 0 { c.Reporting.MaxRegisteredBeaconsPerAdTech = d.MaxRegisteredBeaconsPerAdTech }
	if c.Reporting.MaxInteractionKeySizeB <= 0 { c.Reporting.MaxInteractionKeySizeB = d.MaxInteractionKeySize }
	if c.Reporting.MaxInteractionURISizeB <= 0 { c.Reporting.MaxInteractionURISizeB = d.MaxInteractionURISize }
	if c.Filter.RequestsPerSecond <= 0 { c.Filter.RequestsPerSecond = 1 }
	if c.Filter.Burst <= 0 { c.Filter.Burst = 1 }
	if c.Fetch.ClientTimeoutMs <= 0 { c.Fetch.ClientTimeoutMs = 10000 }
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

func (c Config) Backoff() time.Duration { return time.Duration(c.Listener.ReconnectSeconds) * time.Second }

// ReportingFlags converts the reporting section into the per-call snapshot.
func (c Config) ReportingFlags() reporting.Flags {
	r := c.Reporting
	return reporting.Flags{
		OverallTimeout:                time.Duration(r.OverallTimeoutMs) * time.Millisecond,
		ScriptTimeout:                 time.Duration(r.ScriptTimeoutMs) * time.Millisecond,
		FetchTimeout:                  time.Duration(r.FetchTimeoutMs) * time.Millisecond,
		MaxRegisteredBeaconsTotal:     r.MaxRegisteredBeaconsTotal,
		MaxRegisteredBeaconsPerAdTech: r.MaxRegisteredBeaconsPerAdTech,
		MaxInteractionKeySize:         r.MaxInteractionKeySizeB,
		MaxInteractionURISize:         r.MaxInteractionURISizeB,
		EnrollmentCheckEnabled:        !r.DisableEnrollmentCheck,
		RegisterAdBeaconEnabled:       r.RegisterAdBeaconEnabled,
		UseUnifiedTables:              r.UseUnifiedTables,
		EnforceForeground:             r.EnforceForeground,
		JSCachingEnabled:              r.JSCachingEnabled,
	}
}
