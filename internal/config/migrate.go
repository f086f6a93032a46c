package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// MigrateConfig holds configuration for the migrate command.
type MigrateConfig struct {
	PGDSN    string
	LogLevel string
}

func LoadMigrate(cfgFile string, flags *pflag.FlagSet) (MigrateConfig, error) {
	v := newViper()
	v.SetDefault("log-level", "info")
	_ = v.BindEnv("pg-dsn", envPrefix+"_PG_DSN", "DATABASE_URL")

	if err := readConfig(v, cfgFile, flags); err != nil {
		return MigrateConfig{}, err
	}

	cfg := MigrateConfig{
		PGDSN:    v.GetString("pg-dsn"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.PGDSN == "" {
		return MigrateConfig{}, fmt.Errorf("pg dsn is required")
	}
	return cfg, nil
}
