// Package config loads node configuration via viper, bound to cobra
// flags and environment variables exactly as the teacher's
// cmd/cli/replication.go and cmd/cli/network.go do (SHAREDLOG_-
// prefixed env vars, a YAML config file, `~shared`-scoped defaults).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// RoleConfig mirrors §6's role config surface: "observer" |
// "replicator" (with an optional fixed factor) | "adaptive" (with
// optional memory limits).
type RoleConfig struct {
	Type         string  `mapstructure:"type" yaml:"type"`
	Factor       float64 `mapstructure:"factor" yaml:"factor"`
	MemoryLimit  uint64  `mapstructure:"memory_limit" yaml:"memory_limit"`
}

// ReplicasConfig is §6's `replicas: {min, max?}`.
type ReplicasConfig struct {
	Min int `mapstructure:"min" yaml:"min"`
	Max int `mapstructure:"max" yaml:"max"`
}

// Config is the full node configuration surface.
type Config struct {
	ListenAddr      string         `mapstructure:"listen_addr" yaml:"listen_addr"`
	BootstrapPeers  []string       `mapstructure:"bootstrap_peers" yaml:"bootstrap_peers"`
	DiscoveryTag    string         `mapstructure:"discovery_tag" yaml:"discovery_tag"`
	ControlAddr     string         `mapstructure:"control_addr" yaml:"control_addr"`
	Role            RoleConfig     `mapstructure:"role" yaml:"role"`
	Replicas        ReplicasConfig `mapstructure:"replicas" yaml:"replicas"`
	RespondToIHaveTimeoutMS int    `mapstructure:"respond_to_i_have_timeout_ms" yaml:"respond_to_i_have_timeout_ms"`
	TargetMemoryLimit uint64       `mapstructure:"target_memory_limit" yaml:"target_memory_limit"`
}

// RespondToIHaveTimeout returns the configured duration, defaulting to
// §6's 10000ms.
func (c Config) RespondToIHaveTimeout() time.Duration {
	if c.RespondToIHaveTimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RespondToIHaveTimeoutMS) * time.Millisecond
}

// Load reads configuration the way initReplConfig does: environment
// prefix, optional explicit config file, otherwise a "sharedlog"
// config name searched on "." and "$HOME/.config/sharedlog".
func Load() (Config, error) {
	viper.SetEnvPrefix("sharedlog")
	viper.AutomaticEnv()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("sharedlog")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/sharedlog")
	}

	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("listen_addr", "/ip4/0.0.0.0/tcp/0")
	viper.SetDefault("discovery_tag", "sharedlog-discovery")
	viper.SetDefault("control_addr", "127.0.0.1:7951")
	viper.SetDefault("role.type", "adaptive")
	viper.SetDefault("role.factor", 1.0)
	viper.SetDefault("role.memory_limit", uint64(512*1024*1024))
	viper.SetDefault("replicas.min", 2)
	viper.SetDefault("replicas.max", 0)
	viper.SetDefault("respond_to_i_have_timeout_ms", 10000)
	viper.SetDefault("target_memory_limit", uint64(512*1024*1024))
}
