package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
// 多实例部署时配置集中存放在Postgres，表结构见configs/schema.sql
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// LoadConfig 从数据库加载完整配置
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := GetDefaultConfig()

	entries, err := dc.loadEntries("factory_config")
	if err != nil {
		return nil, fmt.Errorf("加载工厂配置失败: %w", err)
	}

	for key, value := range entries {
		switch key {
		case "node_url":
			config.Node.URL = value
		case "node_timeout":
			config.Node.Timeout = value
		case "contract_address":
			config.Contract.Address = value
		case "contract_artifact_path":
			config.Contract.ArtifactPath = value
		case "chain_id":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				config.Contract.ChainID = v
			}
		case "keystore_dir":
			config.Wallet.KeystoreDir = value
		case "wallet_account":
			config.Wallet.Account = value
		case "wallet_password_file":
			config.Wallet.PasswordFile = value
		case "watcher_poll_interval":
			config.Watcher.PollInterval = value
		case "watcher_confirmations":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				config.Watcher.Confirmations = v
			}
		case "watcher_batch_size":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				config.Watcher.BatchSize = v
			}
		case "watcher_start_block":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				config.Watcher.StartBlock = v
			}
		case "watcher_db_path":
			config.Watcher.DBPath = value
		case "sink_type":
			config.Sink.Type = value
		case "kafka_brokers":
			var brokers []string
			if err := json.Unmarshal([]byte(value), &brokers); err == nil {
				config.Sink.KafkaBrokers = brokers
			}
		case "kafka_topic":
			config.Sink.KafkaTopic = value
		case "api_listen":
			config.API.Listen = value
		case "log_level":
			config.Logging.Level = value
		case "log_format":
			config.Logging.Format = value
		case "log_output":
			config.Logging.Output = value
		}
	}

	return config, nil
}

// loadEntries 读取激活的配置键值对
func (dc *DatabaseConfig) loadEntries(tableName string) (map[string]string, error) {
	query := fmt.Sprintf(`SELECT config_key, config_value FROM %s WHERE is_active = true`, tableName)
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		entries[key] = value
	}

	return entries, rows.Err()
}

// UpdateConfig 更新配置项
func (dc *DatabaseConfig) UpdateConfig(key, value string) error {
	query := `
		INSERT INTO factory_config (config_key, config_value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (config_key)
		DO UPDATE SET config_value = $2, updated_at = CURRENT_TIMESTAMP
	`
	_, err := dc.DB.Exec(query, key, value)
	return err
}

// GetConfig 获取单个配置值
func (dc *DatabaseConfig) GetConfig(key string) (string, error) {
	query := `SELECT config_value FROM factory_config WHERE config_key = $1 AND is_active = true`
	var value string
	err := dc.DB.QueryRow(query, key).Scan(&value)
	return value, err
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
