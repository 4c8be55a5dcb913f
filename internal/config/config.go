package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"zombiefactory/internal/logging"
)

// Config 主配置
type Config struct {
	Node     *NodeConfig        `mapstructure:"node"`
	Contract *ContractConfig    `mapstructure:"contract"`
	Wallet   *WalletConfig      `mapstructure:"wallet"`
	Watcher  *WatcherConfig     `mapstructure:"watcher"`
	Sink     *SinkConfig        `mapstructure:"sink"`
	API      *APIConfig         `mapstructure:"api"`
	Logging  *logging.LogConfig `mapstructure:"logging"`
}

// NodeConfig 节点配置
type NodeConfig struct {
	URL     string `mapstructure:"url"`
	Timeout string `mapstructure:"timeout"`
}

// ContractConfig 合约配置
type ContractConfig struct {
	Address      string `mapstructure:"address"`
	ArtifactPath string `mapstructure:"artifact_path"` // 编译产物路径，为空时使用内置ABI
	ChainID      int64  `mapstructure:"chain_id"`
}

// WalletConfig 钱包配置
type WalletConfig struct {
	KeystoreDir  string `mapstructure:"keystore_dir"`
	Account      string `mapstructure:"account"`
	PasswordFile string `mapstructure:"password_file"`
}

// WatcherConfig 事件监听配置
type WatcherConfig struct {
	PollInterval  string `mapstructure:"poll_interval"`
	Confirmations uint64 `mapstructure:"confirmations"`
	BatchSize     uint64 `mapstructure:"batch_size"`
	StartBlock    uint64 `mapstructure:"start_block"`
	DBPath        string `mapstructure:"db_path"` // 检查点数据库路径
}

// SinkConfig 事件输出配置
type SinkConfig struct {
	Type         string   `mapstructure:"type"` // kafka 或 log
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

// APIConfig HTTP服务配置
type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoadConfig 加载配置（自动检测配置源）
func LoadConfig(configPath string) (*Config, error) {
	// 首先尝试从环境变量获取数据库配置
	dbDSN := os.Getenv("ZF_DB_DSN")
	if dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return config, nil
	}

	// 检查是否存在数据库配置文件
	dbConfigFile := "configs/database.yaml"
	if _, err := os.Stat(dbConfigFile); err == nil {
		dbViper := viper.New()
		dbViper.SetConfigFile(dbConfigFile)
		dbViper.SetConfigType("yaml")

		if err := dbViper.ReadInConfig(); err == nil {
			dbDSN := dbViper.GetString("database.dsn")
			if dbDSN != "" {
				logger := logrus.New()
				dbConfig, err := NewDatabaseConfig(dbDSN, logger)
				if err == nil {
					defer dbConfig.Close()

					config, err := dbConfig.LoadConfig()
					if err == nil {
						logger.Info("已从数据库加载配置")
						return config, nil
					}
				}
			}
		}
	}

	// 数据库配置不可用时回退到YAML文件
	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从文件加载配置
func LoadConfigFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := GetDefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return config, nil
}

// Validate 检查运行必需的配置项
func (c *Config) Validate() error {
	if c.Node == nil || c.Node.URL == "" {
		return fmt.Errorf("缺少节点URL配置")
	}
	if c.Contract == nil || c.Contract.Address == "" {
		return fmt.Errorf("缺少合约地址配置")
	}
	if c.Contract.ChainID <= 0 {
		return fmt.Errorf("无效的链ID: %d", c.Contract.ChainID)
	}
	return nil
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Node: &NodeConfig{
			URL:     "", // 需要在YAML配置或数据库中指定
			Timeout: "30s",
		},
		Contract: &ContractConfig{
			ChainID: 1337,
		},
		Wallet: &WalletConfig{
			KeystoreDir: "./keystore",
		},
		Watcher: &WatcherConfig{
			PollInterval:  "3s",
			Confirmations: 1,
			BatchSize:     500,
			DBPath:        "./data/watcher.db",
		},
		Sink: &SinkConfig{
			Type:         "log",
			KafkaBrokers: []string{"localhost:9092"},
			KafkaTopic:   "zombie_factory_events",
		},
		API: &APIConfig{
			Listen: ":8080",
		},
		Logging: &logging.LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}
