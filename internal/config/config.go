package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Leader   LeaderConfig   `mapstructure:"leader"`
	Instance InstanceConfig `mapstructure:"instance"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type WalletConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EngineConfig holds the bidding and settlement tunables.
type EngineConfig struct {
	MaxBidAttempts     int           `mapstructure:"max_bid_attempts"`
	ExtensionWindow    time.Duration `mapstructure:"extension_window"`
	RefundBatchSize    int           `mapstructure:"refund_batch_size"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize     int           `mapstructure:"sweep_batch_size"`
	MinAuctionDuration time.Duration `mapstructure:"min_auction_duration"`
	MaxAuctionDuration time.Duration `mapstructure:"max_auction_duration"`
}

type LeaderConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	viper.SetDefault("mysql.max_open_conns", 25)
	viper.SetDefault("mysql.max_idle_conns", 10)
	viper.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("wallet.base_url", "http://localhost:8090")
	viper.SetDefault("wallet.timeout", 5*time.Second)
	viper.SetDefault("engine.max_bid_attempts", 4)
	viper.SetDefault("engine.extension_window", 5*time.Minute)
	viper.SetDefault("engine.refund_batch_size", 100)
	viper.SetDefault("engine.sweep_interval", 15*time.Second)
	viper.SetDefault("engine.sweep_batch_size", 50)
	viper.SetDefault("engine.min_auction_duration", 10*time.Minute)
	viper.SetDefault("engine.max_auction_duration", 30*24*time.Hour)
	viper.SetDefault("leader.ttl", 30*time.Second)
	viper.SetDefault("instance.id", "auction-engine-1")

	// Configuration file settings
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/auction-engine/")

	// Environment variable support
	viper.AutomaticEnv()

	// Environment variable mappings
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("redis.address", "REDIS_ADDRESS")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("mysql.dsn", "MYSQL_DSN")
	viper.BindEnv("mysql.max_open_conns", "MYSQL_MAX_OPEN_CONNS")
	viper.BindEnv("mysql.max_idle_conns", "MYSQL_MAX_IDLE_CONNS")
	viper.BindEnv("mysql.conn_max_lifetime", "MYSQL_CONN_MAX_LIFETIME")
	viper.BindEnv("wallet.base_url", "WALLET_BASE_URL")
	viper.BindEnv("wallet.timeout", "WALLET_TIMEOUT")
	viper.BindEnv("engine.max_bid_attempts", "ENGINE_MAX_BID_ATTEMPTS")
	viper.BindEnv("engine.extension_window", "ENGINE_EXTENSION_WINDOW")
	viper.BindEnv("engine.refund_batch_size", "ENGINE_REFUND_BATCH_SIZE")
	viper.BindEnv("engine.sweep_interval", "ENGINE_SWEEP_INTERVAL")
	viper.BindEnv("engine.sweep_batch_size", "ENGINE_SWEEP_BATCH_SIZE")
	viper.BindEnv("engine.min_auction_duration", "ENGINE_MIN_AUCTION_DURATION")
	viper.BindEnv("engine.max_auction_duration", "ENGINE_MAX_AUCTION_DURATION")
	viper.BindEnv("leader.ttl", "LEADER_TTL")
	viper.BindEnv("instance.id", "INSTANCE_ID")

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, continue with defaults and environment variables
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Redis: %s, MySQL: %s, Wallet: %s, Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.Redis.Address,
		c.MySQL.DSN,
		c.Wallet.BaseURL,
		c.Instance.ID,
	)
}
