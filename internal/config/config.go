// Package config loads indexer configuration from environment variables,
// following the Load()/setDefaults() shape used across the csic-platform
// services (see compliance/internal/config/config.go) but adapted to the
// flat BITCOIN_{NET}_* environment layout required by spec.md §6.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the indexer process.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Networks []NetworkConfig
	CharmsAPIURL string
	KafkaBrokers []string
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Debug               bool
	LogLevel            string
	ProcessBlockInterval time.Duration
	MempoolPollInterval  time.Duration
	MetricsPort          int
	HealthPort           int
}

// DatabaseConfig holds the Postgres connection string and pool sizing.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// NetworkConfig is one (blockchain, network) entry, e.g. bitcoin/mainnet.
type NetworkConfig struct {
	Network            string // "mainnet", "testnet"
	Blockchain         string // always "bitcoin" for this indexer
	Enabled            bool
	RPCHost            string
	RPCPort            int
	RPCUser            string
	RPCPassword        string
	GenesisBlockHeight int64
}

var knownNetworks = []string{"MAINNET", "TESTNET"}

// Load reads configuration purely from the environment, matching spec.md §6:
// DATABASE_URL, BITCOIN_{NET}_RPC_HOST/_PORT/_USER/_PASSWORD/_GENESIS_BLOCK_HEIGHT/_ENABLED,
// PROCESS_BLOCK_INTERVAL_MS, CHARMS_API_URL, KAFKA_BROKERS.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	dbURL := v.GetString("database_url")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		App: AppConfig{
			Debug:                v.GetBool("debug"),
			LogLevel:             v.GetString("log_level"),
			ProcessBlockInterval: time.Duration(v.GetInt("process_block_interval_ms")) * time.Millisecond,
			MempoolPollInterval:  time.Duration(v.GetInt("mempool_poll_interval_ms")) * time.Millisecond,
			MetricsPort:          v.GetInt("metrics_port"),
			HealthPort:           v.GetInt("health_port"),
		},
		Database: DatabaseConfig{
			URL:          dbURL,
			MaxOpenConns: v.GetInt("database_max_open_conns"),
			MaxIdleConns: v.GetInt("database_max_idle_conns"),
		},
		CharmsAPIURL: v.GetString("charms_api_url"),
		KafkaBrokers: splitNonEmpty(v.GetString("kafka_brokers"), ","),
	}

	for _, net := range knownNetworks {
		nc := NetworkConfig{
			Network:            strings.ToLower(net),
			Blockchain:         "bitcoin",
			Enabled:            v.GetBool(fmt.Sprintf("bitcoin_%s_enabled", net)),
			RPCHost:            v.GetString(fmt.Sprintf("bitcoin_%s_rpc_host", net)),
			RPCPort:            v.GetInt(fmt.Sprintf("bitcoin_%s_rpc_port", net)),
			RPCUser:            v.GetString(fmt.Sprintf("bitcoin_%s_rpc_user", net)),
			RPCPassword:        v.GetString(fmt.Sprintf("bitcoin_%s_rpc_password", net)),
			GenesisBlockHeight: v.GetInt64(fmt.Sprintf("bitcoin_%s_genesis_block_height", net)),
		}
		cfg.Networks = append(cfg.Networks, nc)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("process_block_interval_ms", 120000)
	v.SetDefault("mempool_poll_interval_ms", 15000)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("health_port", 8080)

	v.SetDefault("database_max_open_conns", 25)
	v.SetDefault("database_max_idle_conns", 5)

	for _, net := range knownNetworks {
		v.SetDefault(fmt.Sprintf("bitcoin_%s_enabled", net), false)
		v.SetDefault(fmt.Sprintf("bitcoin_%s_rpc_port", net), 8332)
		v.SetDefault(fmt.Sprintf("bitcoin_%s_genesis_block_height", net), 0)
	}
}

// splitNonEmpty splits s on sep, trimming whitespace and dropping empty
// fields, so an unset KAFKA_BROKERS yields a nil slice rather than [""].
func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EnabledNetworks returns only the networks with BITCOIN_{NET}_ENABLED=true.
func (c *Config) EnabledNetworks() []NetworkConfig {
	out := make([]NetworkConfig, 0, len(c.Networks))
	for _, n := range c.Networks {
		if n.Enabled {
			out = append(out, n)
		}
	}
	return out
}
