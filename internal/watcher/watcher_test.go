package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zombiefactory/internal/contract"
	"zombiefactory/internal/progress"
	"zombiefactory/internal/sink"
	"zombiefactory/pkg/models"
)

const testAddress = "0x1234567890AbcdEF1234567890aBcdef12345678"

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeClient 可控的节点客户端
type fakeClient struct {
	mu          sync.Mutex
	latest      uint64
	latestErr   error
	logs        []types.Log
	filterErr   error
	filterCalls []ethereum.FilterQuery
}

func (c *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latestErr != nil {
		return 0, c.latestErr
	}
	return c.latest, nil
}

func (c *fakeClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterCalls = append(c.filterCalls, q)
	if c.filterErr != nil {
		return nil, c.filterErr
	}

	var result []types.Log
	for _, lg := range c.logs {
		if lg.BlockNumber >= q.FromBlock.Uint64() && lg.BlockNumber <= q.ToBlock.Uint64() {
			result = append(result, lg)
		}
	}
	return result, nil
}

// fakeDecoder 按日志序号构造事件，序号在badIndexes中的日志解码失败
type fakeDecoder struct {
	badIndexes map[uint]bool
}

func (d *fakeDecoder) DecodeNewZombie(lg types.Log) (*models.NewZombieEvent, error) {
	if d.badIndexes[lg.Index] {
		return nil, errors.New("事件参数缺失")
	}
	return &models.NewZombieEvent{
		ZombieID:    uint64(lg.Index),
		Name:        fmt.Sprintf("zombie-%d", lg.Index),
		DNA:         big.NewInt(int64(lg.Index) * 1111),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.Index,
	}, nil
}

// captureSink 记录写入的事件
type captureSink struct {
	mu     sync.Mutex
	events []*models.NewZombieEvent
}

func (s *captureSink) WriteEvent(event *models.NewZombieEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) captured() []*models.NewZombieEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.NewZombieEvent(nil), s.events...)
}

func newTestProgress(t *testing.T) *progress.Manager {
	t.Helper()
	manager, err := progress.NewManager(filepath.Join(t.TempDir(), "watcher.db"), newTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestNew_Validation(t *testing.T) {
	schema, err := contract.NewSchema(testAddress)
	require.NoError(t, err)
	logger := newTestLogger()

	_, err = New(nil, schema, &fakeDecoder{}, nil, nil, nil, logger)
	assert.Error(t, err)

	_, err = New(&fakeClient{}, nil, &fakeDecoder{}, nil, nil, nil, logger)
	assert.Error(t, err)

	_, err = New(&fakeClient{}, schema, nil, nil, nil, nil, logger)
	assert.Error(t, err)
}

func TestWatcher_ScanOnce(t *testing.T) {
	client := &fakeClient{
		latest: 10,
		logs: []types.Log{
			{BlockNumber: 6, Index: 0},
			{BlockNumber: 7, Index: 1},
			{BlockNumber: 9, Index: 2},
		},
	}
	capture := &captureSink{}
	schema, err := contract.NewSchema(testAddress)
	require.NoError(t, err)
	prog := newTestProgress(t)

	w, err := New(client, schema, &fakeDecoder{}, prog, []sink.Sink{capture}, &Config{
		Confirmations: 1,
		StartBlock:    5,
	}, newTestLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.initStartBlock(ctx))
	require.NoError(t, w.scanOnce(ctx))

	// 目标区块为 10 - 1 = 9，扫描范围 [6, 9]
	events := capture.captured()
	require.Len(t, events, 3)
	assert.Equal(t, uint64(6), events[0].BlockNumber)
	assert.Equal(t, uint64(7), events[1].BlockNumber)
	assert.Equal(t, uint64(9), events[2].BlockNumber)

	assert.Equal(t, uint64(9), prog.LastScannedBlock())
	assert.Equal(t, uint64(3), prog.Snapshot().TotalEvents)

	// 过滤查询绑定合约地址与事件topic
	require.NotEmpty(t, client.filterCalls)
	query := client.filterCalls[0]
	require.Len(t, query.Addresses, 1)
	assert.Equal(t, schema.Address, query.Addresses[0])
	require.Len(t, query.Topics, 1)
	assert.Equal(t, schema.NewZombieEventID(), query.Topics[0][0])
}

func TestWatcher_ScanOnce_NoNewBlocks(t *testing.T) {
	client := &fakeClient{latest: 5}
	capture := &captureSink{}
	schema, err := contract.NewSchema(testAddress)
	require.NoError(t, err)
	prog := newTestProgress(t)
	require.NoError(t, prog.SetStartBlock(5))

	w, err := New(client, schema, &fakeDecoder{}, prog, []sink.Sink{capture}, &Config{
		Confirmations: 0,
	}, newTestLogger())
	require.NoError(t, err)

	require.NoError(t, w.scanOnce(context.Background()))
	assert.Empty(t, capture.captured())
	assert.Empty(t, client.filterCalls)
}

func TestWatcher_ScanOnce_DecodeFailureSkipsLog(t *testing.T) {
	client := &fakeClient{
		latest: 10,
		logs: []types.Log{
			{BlockNumber: 6, Index: 0},
			{BlockNumber: 7, Index: 1}, // 解码失败
			{BlockNumber: 8, Index: 2},
		},
	}
	capture := &captureSink{}
	schema, err := contract.NewSchema(testAddress)
	require.NoError(t, err)
	prog := newTestProgress(t)
	require.NoError(t, prog.SetStartBlock(5))

	decoder := &fakeDecoder{badIndexes: map[uint]bool{1: true}}
	w, err := New(client, schema, decoder, prog, []sink.Sink{capture}, &Config{
		Confirmations: 0,
	}, newTestLogger())
	require.NoError(t, err)

	require.NoError(t, w.scanOnce(context.Background()))

	// 失败的日志被跳过，后续日志照常分发
	events := capture.captured()
	require.Len(t, events, 2)
	assert.Equal(t, uint64(6), events[0].BlockNumber)
	assert.Equal(t, uint64(8), events[1].BlockNumber)

	// 检查点仍推进到目标区块
	assert.Equal(t, uint64(10), prog.LastScannedBlock())

	// 解码失败计入错误统计
	stats := w.ErrorStats()
	assert.Equal(t, 1, stats["total_errors"])
}

func TestWatcher_ScanOnce_BatchedRanges(t *testing.T) {
	client := &fakeClient{latest: 25}
	capture := &captureSink{}
	schema, err := contract.NewSchema(testAddress)
	require.NoError(t, err)
	prog := newTestProgress(t)
	require.NoError(t, prog.SetStartBlock(0))
	require.NoError(t, prog.UpdateScanned(5, 0))

	w, err := New(client, schema, &fakeDecoder{}, prog, []sink.Sink{capture}, &Config{
		Confirmations: 0,
		BatchSize:     10,
	}, newTestLogger())
	require.NoError(t, err)

	require.NoError(t, w.scanOnce(context.Background()))

	// 目标区块25，从6开始按批次扫描：[6,15] [16,25]
	require.Len(t, client.filterCalls, 2)
	assert.Equal(t, uint64(6), client.filterCalls[0].FromBlock.Uint64())
	assert.Equal(t, uint64(15), client.filterCalls[0].ToBlock.Uint64())
	assert.Equal(t, uint64(16), client.filterCalls[1].FromBlock.Uint64())
	assert.Equal(t, uint64(25), client.filterCalls[1].ToBlock.Uint64())
	assert.Equal(t, uint64(25), prog.LastScannedBlock())
}

func TestWatcher_ScanOnce_FilterError(t *testing.T) {
	client := &fakeClient{
		latest:    10,
		filterErr: errors.New("invalid range"),
	}
	schema, err := contract.NewSchema(testAddress)
	require.NoError(t, err)
	prog := newTestProgress(t)
	require.NoError(t, prog.SetStartBlock(5))

	w, err := New(client, schema, &fakeDecoder{}, prog, nil, &Config{
		Confirmations: 0,
	}, newTestLogger())
	require.NoError(t, err)

	err = w.scanOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "查询区块")

	// 失败时检查点不推进
	assert.Equal(t, uint64(5), prog.LastScannedBlock())
}

func TestWatcher_InitStartBlock_FromLatest(t *testing.T) {
	client := &fakeClient{latest: 1234}
	schema, err := contract.NewSchema(testAddress)
	require.NoError(t, err)
	prog := newTestProgress(t)

	w, err := New(client, schema, &fakeDecoder{}, prog, nil, nil, newTestLogger())
	require.NoError(t, err)

	require.NoError(t, w.initStartBlock(context.Background()))
	assert.Equal(t, uint64(1234), prog.LastScannedBlock())
}

func TestWatcher_Run_Cancel(t *testing.T) {
	client := &fakeClient{latest: 10}
	schema, err := contract.NewSchema(testAddress)
	require.NoError(t, err)
	prog := newTestProgress(t)

	w, err := New(client, schema, &fakeDecoder{}, prog, nil, &Config{
		PollInterval: 10 * time.Millisecond,
	}, newTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run未在取消后退出")
	}
}
