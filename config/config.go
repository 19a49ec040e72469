// Package config loads the bridge configuration: the RTC settings the peer
// connections are created with, the signaling server limits, and logging
// preferences. Values come from an optional config file and environment
// variables with sane defaults for local development.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/pomelo-net/webrtc-plugin/errors"
)

// Config is the full bridge configuration.
type Config struct {
	// ICEServers are STUN/TURN URLs handed to every peer connection.
	ICEServers []string `mapstructure:"ice_servers"`

	// ICEIncludeLoopback gathers loopback candidates, for single-machine
	// development.
	ICEIncludeLoopback bool `mapstructure:"ice_include_loopback"`

	// TLSCertFile and TLSKeyFile enable wss:// on the signaling server when
	// both are set.
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`

	// MaxSignalMessageBytes caps a single inbound signaling frame.
	MaxSignalMessageBytes int `mapstructure:"max_signal_message_bytes"`

	// SignalRateLimit and SignalRateBurst bound inbound signaling frames per
	// connection (frames per second / burst).
	SignalRateLimit float64 `mapstructure:"signal_rate_limit"`
	SignalRateBurst int     `mapstructure:"signal_rate_burst"`

	// Workers sizes the dispatcher's worker pool.
	Workers int `mapstructure:"workers"`

	// LogJSON selects JSON log output.
	LogJSON bool `mapstructure:"log_json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ice_servers", []string{})
	v.SetDefault("ice_include_loopback", false)
	v.SetDefault("tls_cert_file", "")
	v.SetDefault("tls_key_file", "")
	// SDP payloads dominate signaling frames; 64 KiB is generous.
	v.SetDefault("max_signal_message_bytes", 64*1024)
	v.SetDefault("signal_rate_limit", 50.0)
	v.SetDefault("signal_rate_burst", 100)
	v.SetDefault("workers", 2)
	v.SetDefault("log_json", false)
}

// Load reads configuration from path (optional; empty means defaults and
// environment only). Environment variables use the POMELO_WEBRTC prefix,
// e.g. POMELO_WEBRTC_WORKERS=4.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("POMELO_WEBRTC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("config: tls_cert_file and tls_key_file must be set together")
	}
	if c.MaxSignalMessageBytes <= 0 {
		return errors.New("config: max_signal_message_bytes must be positive")
	}
	if c.Workers < 1 {
		return errors.New("config: workers must be at least 1")
	}
	if c.SignalRateLimit <= 0 || c.SignalRateBurst < 1 {
		return errors.New("config: signal rate limit and burst must be positive")
	}
	return nil
}
