package sink

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"zombiefactory/internal/config"
	"zombiefactory/pkg/models"
)

// Sink 事件输出接口
// 监听器解码出的NewZombie事件经由Sink落地
type Sink interface {
	WriteEvent(event *models.NewZombieEvent) error
	Close() error
}

// NewSink 按输出类型创建Sink
func NewSink(sinkType string, cfg *config.SinkConfig, logger *logrus.Logger) (Sink, error) {
	switch strings.ToLower(sinkType) {
	case "kafka":
		brokers := []string{"localhost:9092"}
		topic := DefaultTopic
		if cfg != nil {
			if len(cfg.KafkaBrokers) > 0 {
				brokers = cfg.KafkaBrokers
			}
			if cfg.KafkaTopic != "" {
				topic = cfg.KafkaTopic
			}
		}
		return NewKafkaSink(brokers, topic, logger)
	case "log", "":
		return NewLogSink(logger), nil
	default:
		return nil, fmt.Errorf("不支持的输出类型: %s", sinkType)
	}
}
