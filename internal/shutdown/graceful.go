package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// 停机顺序常量
// 监听进程先停止扫描，再刷新输出，最后保存检查点并释放连接
const (
	OrderStopWatcher     = 10 // 停止事件扫描循环
	OrderStopAPIServer   = 20 // 停止HTTP服务
	OrderFlushSinks      = 30 // 刷新并关闭事件输出
	OrderSaveCheckpoint  = 40 // 保存扫描检查点
	OrderCloseNodeClient = 50 // 断开节点连接
)

// Hook 停机处理函数
type Hook struct {
	Name  string
	Func  func(ctx context.Context) error
	Order int // 数字越小越早执行
}

// Manager 优雅停机管理器
type Manager struct {
	logger     *logrus.Logger
	timeout    time.Duration
	hooks      []Hook
	mu         sync.Mutex
	signalChan chan os.Signal
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	stopping   bool
}

// NewManager 创建优雅停机管理器
func NewManager(timeout time.Duration, logger *logrus.Logger) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:     logger,
		timeout:    timeout,
		signalChan: make(chan os.Signal, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	signal.Notify(m.signalChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	return m
}

// Register 注册停机处理函数
func (m *Manager) Register(name string, fn func(ctx context.Context) error, order int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = append(m.hooks, Hook{Name: name, Func: fn, Order: order})
	m.logger.Debugf("注册停机处理函数: %s (order: %d)", name, order)
}

// Start 启动信号监听
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.handleSignals()
	m.logger.Info("优雅停机管理器已启动，监听信号: SIGINT, SIGTERM, SIGQUIT")
}

// Wait 等待停机完成
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Context 进程主上下文，停机时取消
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Shutdown 手动触发停机
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return
	}
	m.stopping = true
	m.mu.Unlock()

	m.logger.Info("手动触发优雅停机...")
	m.runHooks()
}

// IsShuttingDown 检查是否正在停机
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopping
}

// Close 关闭停机管理器
func (m *Manager) Close() error {
	signal.Stop(m.signalChan)
	close(m.signalChan)

	if !m.IsShuttingDown() {
		m.Shutdown()
	}
	return nil
}

// handleSignals 信号处理循环
func (m *Manager) handleSignals() {
	defer m.wg.Done()

	sig, ok := <-m.signalChan
	if !ok {
		return
	}
	m.logger.Infof("收到停机信号: %v", sig)

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		m.logger.Warn("停机过程已在进行中，忽略信号")
		return
	}
	m.stopping = true
	m.mu.Unlock()

	m.runHooks()
}

// runHooks 按顺序执行停机处理函数
func (m *Manager) runHooks() {
	m.logger.Info("开始优雅停机流程...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), m.timeout)
	defer shutdownCancel()

	m.mu.Lock()
	hooks := make([]Hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].Order < hooks[j].Order
	})

	var errs []error
	for _, hook := range hooks {
		m.logger.Infof("执行停机处理: %s", hook.Name)

		start := time.Now()
		err := hook.Func(shutdownCtx)
		duration := time.Since(start)

		if err != nil {
			m.logger.Errorf("停机处理 '%s' 失败 (耗时: %v): %v", hook.Name, duration, err)
			errs = append(errs, fmt.Errorf("%s: %w", hook.Name, err))
		} else {
			m.logger.Infof("停机处理 '%s' 完成 (耗时: %v)", hook.Name, duration)
		}

		select {
		case <-shutdownCtx.Done():
			m.logger.Warn("停机超时，强制退出")
			m.cancel()
			return
		default:
		}
	}

	m.cancel()

	if len(errs) > 0 {
		m.logger.Errorf("停机过程中发生 %d 个错误", len(errs))
		for _, err := range errs {
			m.logger.Error(err)
		}
	}

	m.logger.Info("优雅停机流程完成")
}
