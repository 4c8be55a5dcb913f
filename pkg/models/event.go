package models

import (
	"math/big"
	"time"
)

// NewZombieEvent 创建事件的解码结果
// 每笔成功的创建交易恰好发出一次，顺序跟随区块包含顺序
type NewZombieEvent struct {
	ZombieID uint64   `json:"zombie_id"`
	Name     string   `json:"name"`
	DNA      *big.Int `json:"dna"`

	// 日志来源信息，便于追溯
	BlockNumber uint64    `json:"block_number"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint      `json:"log_index"`
	ObservedAt  time.Time `json:"observed_at"`
}

// ToKafkaMessage 转换为Kafka消息格式
func (e *NewZombieEvent) ToKafkaMessage() map[string]interface{} {
	dna := "0"
	if e.DNA != nil {
		dna = e.DNA.String()
	}
	return map[string]interface{}{
		"event_type":   "NewZombie",
		"zombie_id":    e.ZombieID,
		"name":         e.Name,
		"dna":          dna,
		"block_number": e.BlockNumber,
		"tx_hash":      e.TxHash,
		"log_index":    e.LogIndex,
		"observed_at":  e.ObservedAt.Format(time.RFC3339),
	}
}
