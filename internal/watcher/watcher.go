package watcher

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"zombiefactory/internal/contract"
	factoryerrors "zombiefactory/internal/errors"
	"zombiefactory/internal/progress"
	"zombiefactory/internal/retry"
	"zombiefactory/internal/sink"
	"zombiefactory/pkg/models"
)

const (
	// DefaultPollInterval 默认轮询间隔
	DefaultPollInterval = 3 * time.Second

	// DefaultConfirmations 默认确认区块数
	DefaultConfirmations = 1

	// DefaultBatchSize 单次扫描的最大区块数
	DefaultBatchSize = 500
)

// NodeClient 节点查询接口
type NodeClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// EventDecoder NewZombie事件解码接口
type EventDecoder interface {
	DecodeNewZombie(lg types.Log) (*models.NewZombieEvent, error)
}

// Config 监听器配置
type Config struct {
	PollInterval  time.Duration // 轮询间隔
	Confirmations uint64        // 等待的确认区块数
	BatchSize     uint64        // 单次扫描的最大区块数
	StartBlock    uint64        // 起始区块（无历史检查点时生效）
}

// Watcher 合约事件监听器
// 轮询节点扫描NewZombie日志，解码后按区块和日志序号顺序
// 写入Sink；扫描位置持久化到检查点，重启后断点续扫
type Watcher struct {
	client   NodeClient
	schema   *contract.Schema
	decoder  EventDecoder
	progress *progress.Manager
	retrier  *retry.Retrier
	reporter *factoryerrors.Reporter
	sinks    []sink.Sink
	logger   *logrus.Logger
	config   *Config
}

// New 创建事件监听器
func New(
	client NodeClient,
	schema *contract.Schema,
	decoder EventDecoder,
	progressMgr *progress.Manager,
	sinks []sink.Sink,
	config *Config,
	logger *logrus.Logger,
) (*Watcher, error) {
	if client == nil {
		return nil, fmt.Errorf("节点客户端不能为空")
	}
	if schema == nil {
		return nil, fmt.Errorf("合约描述不能为空")
	}
	if decoder == nil {
		return nil, fmt.Errorf("事件解码器不能为空")
	}

	if config == nil {
		config = &Config{}
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.BatchSize == 0 {
		config.BatchSize = DefaultBatchSize
	}

	return &Watcher{
		client:   client,
		schema:   schema,
		decoder:  decoder,
		progress: progressMgr,
		retrier:  retry.NewRetrier(retry.NetworkRetryConfig, logger),
		reporter: factoryerrors.NewReporter(logger),
		sinks:    sinks,
		logger:   logger,
		config:   config,
	}, nil
}

// Run 启动监听循环，阻塞直到ctx取消
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.initStartBlock(ctx); err != nil {
		return err
	}

	w.logger.Infof("开始监听合约事件，合约地址: %s，起始区块: %d",
		w.schema.Address.Hex(), w.lastScanned())

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.scanOnce(ctx); err != nil {
				if ctx.Err() != nil {
					w.logger.Info("事件监听已停止")
					return ctx.Err()
				}
				w.logger.Errorf("扫描失败: %v", err)
			}

		case <-ctx.Done():
			w.logger.Info("事件监听已停止")
			return ctx.Err()
		}
	}
}

// initStartBlock 确定扫描起点
func (w *Watcher) initStartBlock(ctx context.Context) error {
	if w.lastScanned() != 0 {
		return nil
	}

	start := w.config.StartBlock
	if start == 0 {
		// 没有指定起始区块时从当前最新区块开始
		latest, err := w.client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("获取最新区块号失败: %w", err)
		}
		start = latest
	}

	if w.progress != nil {
		return w.progress.SetStartBlock(start)
	}
	return nil
}

func (w *Watcher) lastScanned() uint64 {
	if w.progress == nil {
		return 0
	}
	return w.progress.LastScannedBlock()
}

// scanOnce 执行一轮扫描
// 目标区块为最新区块减去确认数，按批次推进避免单次查询范围过大
func (w *Watcher) scanOnce(ctx context.Context) error {
	var latest uint64
	err := w.retrier.Execute(ctx, "block_number", func() error {
		var err error
		latest, err = w.client.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("获取最新区块号失败: %w", err)
	}

	if latest < w.config.Confirmations {
		return nil
	}
	target := latest - w.config.Confirmations

	for {
		last := w.lastScanned()
		if target <= last {
			return nil
		}

		from := last + 1
		to := from + w.config.BatchSize - 1
		if to > target {
			to = target
		}

		count, err := w.scanRange(ctx, from, to)
		if err != nil {
			return err
		}

		if w.progress != nil {
			if err := w.progress.UpdateScanned(to, count); err != nil {
				w.logger.Errorf("更新检查点失败: %v", err)
			}
		}

		if count > 0 {
			w.logger.Infof("已扫描区块 [%d, %d]，捕获 %d 个事件", from, to, count)
		}
	}
}

// scanRange 扫描区块区间并分发事件
// 节点按区块号和日志序号升序返回日志，分发保持该顺序；
// 单条日志解码失败只记录并跳过，不中断扫描
func (w *Watcher) scanRange(ctx context.Context, from, to uint64) (int, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{w.schema.Address},
		Topics:    [][]common.Hash{{w.schema.NewZombieEventID()}},
	}

	var logs []types.Log
	err := w.retrier.Execute(ctx, "filter_logs", func() error {
		var err error
		logs, err = w.client.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("查询区块 [%d, %d] 日志失败: %w", from, to, err)
	}

	count := 0
	for _, lg := range logs {
		event, err := w.decoder.DecodeNewZombie(lg)
		if err != nil {
			w.reporter.Report(err)
			continue
		}

		w.dispatch(event)
		count++
	}

	return count, nil
}

// dispatch 将事件写入所有Sink
func (w *Watcher) dispatch(event *models.NewZombieEvent) {
	for _, s := range w.sinks {
		if err := s.WriteEvent(event); err != nil {
			w.reporter.Report(err)
		}
	}
}

// ErrorStats 累计错误统计
func (w *Watcher) ErrorStats() map[string]interface{} {
	return w.reporter.Stats()
}
