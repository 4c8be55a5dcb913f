package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 网络相关错误
	ErrorTypeNetwork ErrorType = iota
	ErrorTypeConnection
	ErrorTypeTimeout

	// 合约相关错误
	ErrorTypeSimulation // 预执行回滚
	ErrorTypeSubmission // 交易提交失败
	ErrorTypeRead       // 只读调用失败
	ErrorTypeDecode     // 事件日志解码失败

	// 钱包相关错误
	ErrorTypeWallet

	// 系统相关错误
	ErrorTypeSystem
	ErrorTypeConfig
	ErrorTypeStorage

	// 外部服务错误
	ErrorTypeKafka
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// FactoryError 自定义错误类型
type FactoryError struct {
	Type      ErrorType              `json:"type"`
	Severity  ErrorSeverity          `json:"severity"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"cause,omitempty"`
	Retryable bool                   `json:"retryable"`
	Component string                 `json:"component"`
	ZombieID  *uint64                `json:"zombie_id,omitempty"`
	TxHash    *string                `json:"tx_hash,omitempty"`
}

// Error 实现error接口，底层客户端错误原样转发
func (e *FactoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *FactoryError) Unwrap() error {
	return e.Cause
}

// IsRetryable 判断是否可重试
func (e *FactoryError) IsRetryable() bool {
	return e.Retryable
}

// WithContext 添加上下文信息
func (e *FactoryError) WithContext(key string, value interface{}) *FactoryError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithZombieID 添加僵尸ID
func (e *FactoryError) WithZombieID(id uint64) *FactoryError {
	e.ZombieID = &id
	return e
}

// WithTxHash 添加交易哈希
func (e *FactoryError) WithTxHash(txHash string) *FactoryError {
	e.TxHash = &txHash
	return e
}

// NewFactoryError 创建新的错误
func NewFactoryError(errorType ErrorType, severity ErrorSeverity, code, message string) *FactoryError {
	return &FactoryError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: determineRetryable(errorType),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *FactoryError {
	return &FactoryError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Retryable: determineRetryable(errorType),
	}
}

// determineRetryable 根据错误类型判断是否可重试
// 注意：网关本身不做重试，该标记只供外围组件（watcher/CLI）参考
func determineRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeConnection, ErrorTypeTimeout:
		return true
	case ErrorTypeKafka:
		return true
	case ErrorTypeRead:
		// 读失败可能只是节点临时不可达
		return true
	default:
		// 预执行回滚、提交被拒、解码失败重试也不会成功
		return false
	}
}

// IsCode 判断错误链上是否存在指定错误码
func IsCode(err error, code string) bool {
	for err != nil {
		var fe *FactoryError
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Code == code {
			return true
		}
		err = fe.Cause
	}
	return false
}

// 错误码常量
const (
	CodeSimulationReverted = "SIMULATION_REVERTED"
	CodeSubmissionFailed   = "SUBMISSION_FAILED"
	CodeReadFailed         = "READ_FAILED"
	CodeEventDecodeFailed  = "EVENT_DECODE_FAILED"
	CodeWalletLocked       = "WALLET_LOCKED"
	CodeConnectionFailed   = "CONNECTION_FAILED"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeCheckpointFailed   = "CHECKPOINT_IO_FAILED"
	CodeKafkaPublishFailed = "KAFKA_PUBLISH_FAILED"
)

// 预定义错误
var (
	ErrConnectionFailed = NewFactoryError(
		ErrorTypeConnection,
		SeverityHigh,
		CodeConnectionFailed,
		"连接节点失败",
	)

	ErrConfigInvalid = NewFactoryError(
		ErrorTypeConfig,
		SeverityCritical,
		CodeConfigInvalid,
		"配置无效",
	)

	ErrKafkaPublishFailed = NewFactoryError(
		ErrorTypeKafka,
		SeverityHigh,
		CodeKafkaPublishFailed,
		"Kafka消息发送失败",
	)
)

// SimulationReverted 预执行回滚错误
func SimulationReverted(cause error, name string) *FactoryError {
	err := WrapError(cause, ErrorTypeSimulation, SeverityMedium,
		CodeSimulationReverted, "预执行表明合约将拒绝该调用")
	return err.WithContext("name", name)
}

// SubmissionFailed 交易提交失败错误
func SubmissionFailed(cause error) *FactoryError {
	return WrapError(cause, ErrorTypeSubmission, SeverityHigh,
		CodeSubmissionFailed, "交易提交失败")
}

// ReadFailed 只读调用失败错误
func ReadFailed(cause error, id uint64) *FactoryError {
	return WrapError(cause, ErrorTypeRead, SeverityMedium,
		CodeReadFailed, "读取链上记录失败").WithZombieID(id)
}

// EventDecodeFailed 事件日志解码失败错误
func EventDecodeFailed(cause error, txHash string, logIndex uint) *FactoryError {
	err := WrapError(cause, ErrorTypeDecode, SeverityMedium,
		CodeEventDecodeFailed, "事件日志解码失败")
	err.WithTxHash(txHash)
	return err.WithContext("log_index", logIndex)
}

// WalletLocked 签名身份不可用错误
func WalletLocked(cause error) *FactoryError {
	return WrapError(cause, ErrorTypeWallet, SeverityHigh,
		CodeWalletLocked, "无法解析签名身份")
}

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeNetwork:    "Network",
	ErrorTypeConnection: "Connection",
	ErrorTypeTimeout:    "Timeout",
	ErrorTypeSimulation: "Simulation",
	ErrorTypeSubmission: "Submission",
	ErrorTypeRead:       "Read",
	ErrorTypeDecode:     "Decode",
	ErrorTypeWallet:     "Wallet",
	ErrorTypeSystem:     "System",
	ErrorTypeConfig:     "Config",
	ErrorTypeStorage:    "Storage",
	ErrorTypeKafka:      "Kafka",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}
