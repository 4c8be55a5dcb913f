package sink

import (
	"github.com/sirupsen/logrus"

	"zombiefactory/pkg/models"
)

// LogSink 日志事件输出器
// 本地开发和watch命令的默认输出，事件直接写入结构化日志
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink 创建日志事件输出器
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// WriteEvent 写入NewZombie事件
func (l *LogSink) WriteEvent(event *models.NewZombieEvent) error {
	if event == nil {
		return nil
	}

	l.logger.WithFields(logrus.Fields{
		"zombie_id":    event.ZombieID,
		"name":         event.Name,
		"dna":          event.DNA.String(),
		"block_number": event.BlockNumber,
		"tx_hash":      event.TxHash,
		"log_index":    event.LogIndex,
	}).Info("捕获NewZombie事件")

	return nil
}

// Close 关闭输出器
func (l *LogSink) Close() error {
	return nil
}
