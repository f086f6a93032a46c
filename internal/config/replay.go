package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	In                string
	Endpoint          string
	STXDialect        string
	PGDSN             string
	DryRun            bool
	Out               string
	Checkpoint        string
	CheckpointEnabled bool
	LogLevel          string
	ContractMainnet   string
	ContractTestnet   string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v := newViper()

	v.SetDefault("endpoint", "stx")
	v.SetDefault("stx-dialect", "decoded-args")
	v.SetDefault("out", "./data/normalized.jsonl")
	v.SetDefault("checkpoint", "./data/replay_checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("log-level", "info")
	_ = v.BindEnv("pg-dsn", envPrefix+"_PG_DSN", "DATABASE_URL")
	_ = v.BindEnv("contract-mainnet", envPrefix+"_CONTRACT_MAINNET", "MULTISEND_CONTRACT_MAINNET")
	_ = v.BindEnv("contract-testnet", envPrefix+"_CONTRACT_TESTNET", "MULTISEND_CONTRACT_TESTNET")

	if err := readConfig(v, cfgFile, flags); err != nil {
		return ReplayConfig{}, err
	}

	cfg := ReplayConfig{
		In:                v.GetString("in"),
		Endpoint:          v.GetString("endpoint"),
		STXDialect:        v.GetString("stx-dialect"),
		PGDSN:             v.GetString("pg-dsn"),
		DryRun:            v.GetBool("dry-run"),
		Out:               v.GetString("out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		LogLevel:          v.GetString("log-level"),
		ContractMainnet:   v.GetString("contract-mainnet"),
		ContractTestnet:   v.GetString("contract-testnet"),
	}

	if cfg.In == "" {
		return ReplayConfig{}, fmt.Errorf("input path is required")
	}
	if cfg.Endpoint != "stx" && cfg.Endpoint != "ft" {
		return ReplayConfig{}, fmt.Errorf("endpoint must be stx or ft, got %q", cfg.Endpoint)
	}
	if !cfg.DryRun && cfg.PGDSN == "" {
		return ReplayConfig{}, fmt.Errorf("pg dsn is required unless --dry-run is set")
	}
	return cfg, nil
}
