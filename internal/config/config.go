package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for the template provider and its backing services.
type Config struct {
	Sv2Listen           string `yaml:"sv2_listen"`
	Sv2ProtocolVersion  uint16 `yaml:"sv2_protocol_version"`
	Sv2OptionalFeatures uint32 `yaml:"sv2_optional_features"`
	// Sv2DefaultCoinbaseSize is accepted for operator compatibility but not
	// applied: the dispatch loop never assembles a template before a
	// session's own CoinbaseOutputDataSize is known, so a server-wide
	// default reserve has nowhere to take effect.
	Sv2DefaultCoinbaseSize uint32 `yaml:"sv2_default_coinbase_tx_additional_output_size"`
	Sv2DefaultFutureTmpl   bool   `yaml:"sv2_default_future_templates"`
	Sv2IntervalSecs        int    `yaml:"sv2_interval"`
	Sv2FeeDelta            int64  `yaml:"sv2_fee_delta"`
	Sv2StaticKeyPath       string `yaml:"sv2_static_key_path"`
	Sv2CertificatePath     string `yaml:"sv2_certificate_path"`
	Sv2MaxBlockWeight      uint32 `yaml:"sv2_max_block_weight"`
	NodeRPCURL             string `yaml:"node_rpc_url"`
	AdminListen            string `yaml:"admin_listen"`
	Sv2TipPollIntervalSecs int    `yaml:"sv2_tip_poll_interval"`
}

// Load reads YAML config from disk.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate enforces required fields and basic sanity checks, filling in
// defaults for anything the operator left at its zero value.
func (c *Config) Validate() error {
	if c.Sv2Listen == "" {
		return fmt.Errorf("sv2_listen is required")
	}
	if c.NodeRPCURL == "" {
		return fmt.Errorf("node_rpc_url is required")
	}
	if c.Sv2StaticKeyPath == "" {
		return fmt.Errorf("sv2_static_key_path is required")
	}
	if c.Sv2CertificatePath == "" {
		return fmt.Errorf("sv2_certificate_path is required")
	}
	if c.Sv2ProtocolVersion == 0 {
		c.Sv2ProtocolVersion = 2
	}
	if c.Sv2IntervalSecs <= 0 {
		c.Sv2IntervalSecs = 30
	}
	if c.Sv2FeeDelta < 0 {
		return fmt.Errorf("sv2_fee_delta must be >= 0")
	}
	if c.Sv2TipPollIntervalSecs <= 0 {
		c.Sv2TipPollIntervalSecs = 5
	}
	if c.Sv2MaxBlockWeight == 0 {
		c.Sv2MaxBlockWeight = 4_000_000
	}
	return nil
}

// TemplateInterval returns Sv2IntervalSecs as a time.Duration.
func (c Config) TemplateInterval() time.Duration {
	return time.Duration(c.Sv2IntervalSecs) * time.Second
}

// TipPollInterval returns Sv2TipPollIntervalSecs as a time.Duration.
func (c Config) TipPollInterval() time.Duration {
	return time.Duration(c.Sv2TipPollIntervalSecs) * time.Second
}
