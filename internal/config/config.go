package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var embeddedYAML []byte

// Chain describes one supported network for display and explorer links.
type Chain struct {
	Name        string `mapstructure:"name"`
	Symbol      string `mapstructure:"symbol"`
	Explorer    string `mapstructure:"explorer"`
	IndexerName string `mapstructure:"indexer_name"`
}

type Engine struct {
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`
	DataDir    string `mapstructure:"data_dir"`
}

type Provider struct {
	RPCURL        string        `mapstructure:"rpc_url"`
	TargetChainID uint64        `mapstructure:"target_chain_id"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// TargetChain returns the configured chain as a big.Int, or nil when no
// target is set and the wallet's chain should be left alone.
func (p Provider) TargetChain() *big.Int {
	if p.TargetChainID == 0 {
		return nil
	}
	return new(big.Int).SetUint64(p.TargetChainID)
}

type Indexer struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	NFTPage int           `mapstructure:"nft_page"`
}

type Payment struct {
	ToAddress          string        `mapstructure:"to_address"`
	BasePriceEth       float64       `mapstructure:"base_price_eth"`
	EnsDiscountPercent float64       `mapstructure:"ens_discount_percent"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	ConfirmTimeout     time.Duration `mapstructure:"confirm_timeout"`
}

type Webhook struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Engine   Engine           `mapstructure:"engine"`
	Provider Provider         `mapstructure:"provider"`
	Indexer  Indexer          `mapstructure:"indexer"`
	Payment  Payment          `mapstructure:"payment"`
	Webhook  Webhook          `mapstructure:"webhook"`
	Chains   map[uint64]Chain `mapstructure:"chains"`
}

// Load reads the embedded defaults, merges an optional config.yaml from the
// usual locations, and applies LASTWISH_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(embeddedYAML)); err != nil {
		return nil, fmt.Errorf("read embedded config: %w", err)
	}

	for _, dir := range configDirs() {
		path := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merge config %s: %w", path, err)
		}
		break
	}

	v.SetEnvPrefix("LASTWISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// overrides commonly supplied through the environment only
	_ = v.BindEnv("indexer.api_key", "LASTWISH_INDEXER_API_KEY", "MORALIS_API_KEY")
	_ = v.BindEnv("provider.rpc_url", "LASTWISH_PROVIDER_RPC_URL")
	_ = v.BindEnv("webhook.url", "LASTWISH_WEBHOOK_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Engine.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve user config dir: %w", err)
		}
		cfg.Engine.DataDir = filepath.Join(base, "estate-engine")
	}

	return &cfg, nil
}

func configDirs() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".config", "estate-engine"),
		".",
	}
}

// ChainFor returns the chain entry for id, or false when the chain is not
// supported.
func (c *Config) ChainFor(id uint64) (Chain, bool) {
	ch, ok := c.Chains[id]
	return ch, ok
}
