package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetrier(config *RetryConfig) *Retrier {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRetrier(config, logger)
}

// 固定实现RetryableError接口的测试错误
type flaggedError struct {
	retryable bool
}

func (e *flaggedError) Error() string     { return "flagged error" }
func (e *flaggedError) IsRetryable() bool { return e.retryable }

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil错误", nil, false},
		{"连接被拒绝", errors.New("dial tcp: connection refused"), true},
		{"IO超时", errors.New("read tcp: i/o timeout"), true},
		{"限流", errors.New("429 too many requests"), true},
		{"过滤器失效", errors.New("filter not found"), true},
		{"普通业务错误", errors.New("invalid argument"), false},
		{"接口标记可重试", &flaggedError{retryable: true}, true},
		{"接口标记不可重试", &flaggedError{retryable: false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

func TestRetrier_Execute_SuccessFirstAttempt(t *testing.T) {
	retrier := newTestRetrier(nil)

	calls := 0
	err := retrier.Execute(context.Background(), "test_op", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_Execute_SuccessAfterRetries(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		BackoffFactor:   2.0,
	}
	retrier := newTestRetrier(config)

	calls := 0
	err := retrier.Execute(context.Background(), "test_op", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_Execute_NonRetryableStopsImmediately(t *testing.T) {
	retrier := newTestRetrier(nil)

	calls := 0
	businessErr := errors.New("invalid name")
	err := retrier.Execute(context.Background(), "test_op", func() error {
		calls++
		return businessErr
	})

	require.Error(t, err)
	assert.Equal(t, businessErr, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_Execute_ExhaustsAttempts(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		BackoffFactor:   2.0,
	}
	retrier := newTestRetrier(config)

	calls := 0
	err := retrier.Execute(context.Background(), "test_op", func() error {
		calls++
		return fmt.Errorf("service unavailable")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "重试 3 次后失败")
	assert.Contains(t, err.Error(), "service unavailable")
}

func TestRetrier_Execute_ContextCancellation(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:     10,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		BackoffFactor:   2.0,
	}
	retrier := newTestRetrier(config)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := retrier.Execute(ctx, "test_op", func() error {
		calls++
		return errors.New("timeout")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 2)
}

func TestRetrier_CalculateDelay(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:     5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		BackoffFactor:   2.0,
		EnableJitter:    false,
	}
	retrier := newTestRetrier(config)

	assert.Equal(t, 100*time.Millisecond, retrier.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, retrier.calculateDelay(2))
	assert.Equal(t, 400*time.Millisecond, retrier.calculateDelay(3))
	// 超出上限时截断
	assert.Equal(t, time.Second, retrier.calculateDelay(10))
}

func TestRetrier_CalculateDelay_Jitter(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:         5,
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         time.Second,
		BackoffFactor:       2.0,
		RandomizationFactor: 0.5,
		EnableJitter:        true,
	}
	retrier := newTestRetrier(config)

	for i := 0; i < 50; i++ {
		delay := retrier.calculateDelay(2)
		assert.GreaterOrEqual(t, delay, 100*time.Millisecond)
		assert.LessOrEqual(t, delay, 300*time.Millisecond)
	}
}
