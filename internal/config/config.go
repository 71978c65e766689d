package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with '-' mapped to
// '_' (e.g. POOLSIM_FEE_BPS).
const EnvPrefix = "POOLSIM"

// Config holds replay and pool settings loaded from flags, env, or config
// file.
type Config struct {
	Mode          string
	Input         string
	EventsOut     string
	ErrorsOut     string
	Report        string
	PGDSN         string
	RPCURL        string
	PoolAddress   string
	AssetA        string
	AssetB        string
	Owner         string
	LedgerAddress string
	FeeBps        uint16
	QuoteTTL      time.Duration
	BatchSize     uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	LogLevel      string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"mode":          "transparent",
		"events-out":    "./data/events.jsonl",
		"errors-out":    "./data/replay_errors.jsonl",
		"report":        "./data/report.json",
		"fee-bps":       30,
		"quote-ttl":     2 * time.Minute,
		"batch-size":    uint64(500),
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return Config{}, err
	}

	feeBps := v.GetUint("fee-bps")
	if feeBps > 10000 {
		return Config{}, fmt.Errorf("fee-bps out of range: %d", feeBps)
	}

	cfg := Config{
		Mode:          strings.ToLower(strings.TrimSpace(v.GetString("mode"))),
		Input:         v.GetString("in"),
		EventsOut:     v.GetString("events-out"),
		ErrorsOut:     v.GetString("errors-out"),
		Report:        v.GetString("report"),
		PGDSN:         v.GetString("pg-dsn"),
		RPCURL:        v.GetString("rpc"),
		PoolAddress:   v.GetString("pool-address"),
		AssetA:        v.GetString("asset-a"),
		AssetB:        v.GetString("asset-b"),
		Owner:         v.GetString("owner"),
		LedgerAddress: v.GetString("ledger-address"),
		FeeBps:        uint16(feeBps),
		QuoteTTL:      v.GetDuration("quote-ttl"),
		BatchSize:     v.GetUint64("batch-size"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("poolsim")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}
