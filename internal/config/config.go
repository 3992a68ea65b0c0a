package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Realtime struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"realtime"`
	Cache struct {
		TTLMS                    int    `yaml:"ttl_ms"`
		SWREnabled               bool   `yaml:"swr_enabled"`
		ValidationTTLMS          int    `yaml:"validation_ttl_ms"`
		BuyerAttempts            int    `yaml:"buyer_attempts"`
		SupplierAttempts         int    `yaml:"supplier_attempts"`
		ExpireAcceptedOnDeadline bool   `yaml:"expire_accepted_on_deadline"`
		SnapshotPath             string `yaml:"snapshot_path"`
	} `yaml:"cache"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("REALTIME_ENDPOINT"); v != "" {
		cfg.Realtime.Endpoint = v
	}
	if v := os.Getenv("CACHE_TTL_MS"); v != "" {
		cfg.Cache.TTLMS = atoiOr(cfg.Cache.TTLMS, v)
	}
	if v := os.Getenv("CACHE_SWR_ENABLED"); v != "" {
		cfg.Cache.SWREnabled = boolOr(cfg.Cache.SWREnabled, v)
	}
	if v := os.Getenv("VALIDATION_TTL_MS"); v != "" {
		cfg.Cache.ValidationTTLMS = atoiOr(cfg.Cache.ValidationTTLMS, v)
	}
	if v := os.Getenv("BUYER_ATTEMPTS"); v != "" {
		cfg.Cache.BuyerAttempts = atoiOr(cfg.Cache.BuyerAttempts, v)
	}
	if v := os.Getenv("SUPPLIER_ATTEMPTS"); v != "" {
		cfg.Cache.SupplierAttempts = atoiOr(cfg.Cache.SupplierAttempts, v)
	}
	if v := os.Getenv("EXPIRE_ACCEPTED_ON_DEADLINE"); v != "" {
		cfg.Cache.ExpireAcceptedOnDeadline = boolOr(cfg.Cache.ExpireAcceptedOnDeadline, v)
	}
	if v := os.Getenv("SNAPSHOT_PATH"); v != "" {
		cfg.Cache.SnapshotPath = v
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func boolOr(fallback bool, v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
