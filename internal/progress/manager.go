package progress

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// 默认数据库路径
	DefaultDBPath = "./data/watcher.db"

	// 存储桶名称
	CheckpointBucket = "checkpoint"
	StatsBucket      = "stats"

	// 检查点键
	LastScannedBlockKey = "last_scanned_block"
	StartTimeKey        = "start_time"
	LastUpdateTimeKey   = "last_update_time"
)

// Checkpoint 扫描检查点
type Checkpoint struct {
	LastScannedBlock uint64    `json:"last_scanned_block"`
	StartTime        time.Time `json:"start_time"`
	LastUpdateTime   time.Time `json:"last_update_time"`
	TotalEvents      uint64    `json:"total_events"`
}

// Manager 检查点管理器
// 持久化事件监听的扫描位置，支持进程重启后断点续扫
type Manager struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	mu     sync.RWMutex

	// 内存缓存
	cache *Checkpoint
}

// NewManager 创建检查点管理器
func NewManager(dbPath string, logger *logrus.Logger) (*Manager, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开检查点数据库失败: %w", err)
	}

	manager := &Manager{
		db:     db,
		logger: logger,
		dbPath: dbPath,
		cache:  &Checkpoint{},
	}

	if err := manager.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	if err := manager.loadCache(); err != nil {
		logger.Warnf("加载检查点缓存失败: %v", err)
	}

	logger.Infof("检查点管理器已初始化，数据库路径: %s", dbPath)
	return manager, nil
}

// initDB 初始化数据库结构
func (m *Manager) initDB() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(CheckpointBucket)); err != nil {
			return fmt.Errorf("创建检查点存储桶失败: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(StatsBucket)); err != nil {
			return fmt.Errorf("创建统计存储桶失败: %w", err)
		}
		return nil
	})
}

// loadCache 加载缓存
func (m *Manager) loadCache() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(CheckpointBucket))
		if bucket == nil {
			return nil
		}

		if data := bucket.Get([]byte(LastScannedBlockKey)); data != nil {
			m.cache.LastScannedBlock = binary.BigEndian.Uint64(data)
		}
		if data := bucket.Get([]byte(StartTimeKey)); data != nil {
			var startTime time.Time
			if err := json.Unmarshal(data, &startTime); err == nil {
				m.cache.StartTime = startTime
			}
		}
		if data := bucket.Get([]byte(LastUpdateTimeKey)); data != nil {
			var lastUpdateTime time.Time
			if err := json.Unmarshal(data, &lastUpdateTime); err == nil {
				m.cache.LastUpdateTime = lastUpdateTime
			}
		}

		return nil
	})
}

// LastScannedBlock 最后扫描过的区块号
func (m *Manager) LastScannedBlock() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.LastScannedBlock
}

// UpdateScanned 更新扫描位置
func (m *Manager) UpdateScanned(blockNumber uint64, eventCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.cache.LastScannedBlock = blockNumber
	m.cache.LastUpdateTime = now
	m.cache.TotalEvents += uint64(eventCount)
	if m.cache.StartTime.IsZero() {
		m.cache.StartTime = now
	}

	return m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(CheckpointBucket))
		if bucket == nil {
			return fmt.Errorf("检查点存储桶不存在")
		}

		blockData := make([]byte, 8)
		binary.BigEndian.PutUint64(blockData, blockNumber)
		if err := bucket.Put([]byte(LastScannedBlockKey), blockData); err != nil {
			return fmt.Errorf("保存区块号失败: %w", err)
		}

		if startTimeData, err := json.Marshal(m.cache.StartTime); err == nil {
			bucket.Put([]byte(StartTimeKey), startTimeData)
		}
		if updateTimeData, err := json.Marshal(now); err == nil {
			bucket.Put([]byte(LastUpdateTimeKey), updateTimeData)
		}

		return nil
	})
}

// SetStartBlock 设置起始区块（仅在没有历史检查点时生效）
func (m *Manager) SetStartBlock(blockNumber uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cache.LastScannedBlock != 0 {
		return nil
	}

	m.cache.LastScannedBlock = blockNumber
	m.cache.StartTime = time.Now()

	return m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(CheckpointBucket))
		if bucket == nil {
			return fmt.Errorf("检查点存储桶不存在")
		}

		blockData := make([]byte, 8)
		binary.BigEndian.PutUint64(blockData, blockNumber)
		if err := bucket.Put([]byte(LastScannedBlockKey), blockData); err != nil {
			return fmt.Errorf("保存起始区块号失败: %w", err)
		}
		return nil
	})
}

// Snapshot 返回检查点快照副本
func (m *Manager) Snapshot() *Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &Checkpoint{
		LastScannedBlock: m.cache.LastScannedBlock,
		StartTime:        m.cache.StartTime,
		LastUpdateTime:   m.cache.LastUpdateTime,
		TotalEvents:      m.cache.TotalEvents,
	}
}

// Reset 重置检查点
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache = &Checkpoint{}

	return m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(CheckpointBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			return bucket.Delete(k)
		})
	})
}

// Stats 获取统计信息
func (m *Manager) Stats() map[string]interface{} {
	snapshot := m.Snapshot()

	stats := map[string]interface{}{
		"last_scanned_block": snapshot.LastScannedBlock,
		"total_events":       snapshot.TotalEvents,
		"start_time":         snapshot.StartTime.Format(time.RFC3339),
		"last_update_time":   snapshot.LastUpdateTime.Format(time.RFC3339),
	}
	if !snapshot.StartTime.IsZero() {
		stats["running_duration"] = time.Since(snapshot.StartTime).String()
	}
	return stats
}

// Close 关闭检查点管理器
func (m *Manager) Close() error {
	if m.db != nil {
		m.logger.Info("关闭检查点管理器")
		return m.db.Close()
	}
	return nil
}
