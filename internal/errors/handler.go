package errors

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Reporter 错误上报器
// 按严重级别记录日志并维护统计，不做任何恢复动作
type Reporter struct {
	logger *logrus.Logger
	mu     sync.RWMutex

	totalErrors   int
	errorsByType  map[ErrorType]int
	errorsByCode  map[string]int
	lastError     *FactoryError
	callbacks     []func(err *FactoryError)
}

// NewReporter 创建错误上报器
func NewReporter(logger *logrus.Logger) *Reporter {
	return &Reporter{
		logger:       logger,
		errorsByType: make(map[ErrorType]int),
		errorsByCode: make(map[string]int),
	}
}

// AddCallback 添加错误回调
func (r *Reporter) AddCallback(callback func(err *FactoryError)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

// Report 上报一个错误
func (r *Reporter) Report(err error) {
	fe, ok := err.(*FactoryError)
	if !ok {
		fe = WrapError(err, ErrorTypeSystem, SeverityMedium, "UNKNOWN_ERROR", "未知错误")
	}

	r.mu.Lock()
	r.totalErrors++
	r.errorsByType[fe.Type]++
	r.errorsByCode[fe.Code]++
	r.lastError = fe
	callbacks := make([]func(err *FactoryError), len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	entry := r.logger.WithFields(logrus.Fields{
		"error_type": fe.Type.String(),
		"error_code": fe.Code,
		"component":  fe.Component,
		"retryable":  fe.Retryable,
	})
	if fe.TxHash != nil {
		entry = entry.WithField("tx_hash", *fe.TxHash)
	}
	if fe.ZombieID != nil {
		entry = entry.WithField("zombie_id", *fe.ZombieID)
	}

	switch fe.Severity {
	case SeverityLow:
		entry.Debug(fe.Error())
	case SeverityMedium:
		entry.Warn(fe.Error())
	default:
		entry.Error(fe.Error())
	}

	for _, callback := range callbacks {
		callback(fe)
	}
}

// Stats 返回错误统计快照
func (r *Reporter) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byCode := make(map[string]int, len(r.errorsByCode))
	for code, count := range r.errorsByCode {
		byCode[code] = count
	}

	stats := map[string]interface{}{
		"total_errors":   r.totalErrors,
		"errors_by_code": byCode,
	}
	if r.lastError != nil {
		stats["last_error"] = r.lastError.Error()
	}
	return stats
}
