package sink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	factoryerrors "zombiefactory/internal/errors"
	"zombiefactory/pkg/models"
)

// DefaultTopic 默认Kafka topic
const DefaultTopic = "zombie_factory_events"

// KafkaSink Kafka事件输出器
type KafkaSink struct {
	logger   *logrus.Logger
	topic    string
	producer sarama.SyncProducer
}

// NewKafkaSink 创建Kafka事件输出器
func NewKafkaSink(brokers []string, topic string, logger *logrus.Logger) (*KafkaSink, error) {
	logger.Infof("初始化Kafka输出器，brokers: %v, topic: %s", brokers, topic)

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者已创建")

	return &KafkaSink{
		logger:   logger,
		topic:    topic,
		producer: producer,
	}, nil
}

// newKafkaSinkWithProducer 测试注入用
func newKafkaSinkWithProducer(producer sarama.SyncProducer, topic string, logger *logrus.Logger) *KafkaSink {
	return &KafkaSink{
		logger:   logger,
		topic:    topic,
		producer: producer,
	}
}

// WriteEvent 写入NewZombie事件
// 消息key为僵尸ID，保证同一僵尸的事件落在同一分区
func (k *KafkaSink) WriteEvent(event *models.NewZombieEvent) error {
	if event == nil {
		return nil
	}

	jsonData, err := json.Marshal(event.ToKafkaMessage())
	if err != nil {
		return fmt.Errorf("序列化事件数据失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", event.ZombieID)),
		Value: sarama.StringEncoder(jsonData),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return factoryerrors.WrapError(err,
			factoryerrors.ErrorTypeKafka,
			factoryerrors.SeverityHigh,
			factoryerrors.CodeKafkaPublishFailed,
			"发送事件到Kafka失败",
		)
	}

	k.logger.Infof("成功发送事件到Kafka topic '%s' (partition: %d, offset: %d): zombie_id=%d",
		k.topic, partition, offset, event.ZombieID)

	return nil
}

// Close 关闭Kafka连接
func (k *KafkaSink) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
