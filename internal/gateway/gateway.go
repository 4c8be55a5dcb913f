package gateway

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"zombiefactory/internal/contract"
	zferrors "zombiefactory/internal/errors"
	"zombiefactory/pkg/models"
)

// Signer 签名身份提供者
// 每次写调用时按需解析，网关不缓存签名者
type Signer interface {
	Address() common.Address
	TransactOpts() (*bind.TransactOpts, error)
}

// Gateway 合约网关
// 无状态门面，把应用调用桥接到单个已部署ZombieFactory合约的
// 读/写/事件原语上。不做重试、不做退避，错误原样上抛
type Gateway struct {
	schema  *contract.Schema
	backend bind.ContractBackend
	bound   *bind.BoundContract
	signer  Signer
	logger  *logrus.Logger
}

// New 创建合约网关
func New(schema *contract.Schema, backend bind.ContractBackend, signer Signer, logger *logrus.Logger) *Gateway {
	return &Gateway{
		schema:  schema,
		backend: backend,
		bound:   bind.NewBoundContract(schema.Address, schema.ABI, backend, backend, backend),
		signer:  signer,
		logger:  logger,
	}
}

// Address 目标合约地址
func (g *Gateway) Address() common.Address {
	return g.schema.Address
}

// SubmitCreation 提交创建交易
// name由调用方负责校验，这里原样透传给合约
// 流程：解析签名身份 -> 预执行捕获回滚 -> 提交交易 -> 立即返回交易哈希
// 不等待区块确认，是否等待由调用方决定
func (g *Gateway) SubmitCreation(ctx context.Context, name string) (common.Hash, error) {
	if g.signer == nil {
		return common.Hash{}, zferrors.SubmissionFailed(zferrors.WalletLocked(fmt.Errorf("未配置签名钱包")))
	}
	opts, err := g.signer.TransactOpts()
	if err != nil {
		return common.Hash{}, zferrors.SubmissionFailed(zferrors.WalletLocked(err))
	}
	opts.Context = ctx

	// 预执行：在提交前发现合约端会拒绝的调用
	input, err := g.schema.ABI.Pack(contract.MethodCreateRandomZombie, name)
	if err != nil {
		return common.Hash{}, zferrors.SubmissionFailed(err)
	}
	msg := ethereum.CallMsg{
		From: opts.From,
		To:   &g.schema.Address,
		Data: input,
	}
	if _, err := g.backend.CallContract(ctx, msg, nil); err != nil {
		return common.Hash{}, zferrors.SimulationReverted(err, name)
	}

	tx, err := g.bound.Transact(opts, contract.MethodCreateRandomZombie, name)
	if err != nil {
		return common.Hash{}, zferrors.SubmissionFailed(err)
	}

	g.logger.WithFields(logrus.Fields{
		"tx_hash": tx.Hash().Hex(),
		"from":    opts.From.Hex(),
	}).Infof("创建交易已提交: %s", name)

	return tx.Hash(), nil
}

// FetchRecord 按编号读取链上僵尸记录
// 只读调用，不产生交易、不消耗gas，返回节点报告的最新已确认状态
// 编号越界属于合约层语义，客户端不做校验
func (g *Gateway) FetchRecord(ctx context.Context, id uint64) (*models.ZombieRecord, error) {
	var out []interface{}
	err := g.bound.Call(&bind.CallOpts{Context: ctx}, &out,
		contract.MethodZombies, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, zferrors.ReadFailed(err, id)
	}

	if len(out) != 2 {
		return nil, zferrors.ReadFailed(fmt.Errorf("返回值数量异常: %d", len(out)), id)
	}
	name, ok := out[0].(string)
	if !ok {
		return nil, zferrors.ReadFailed(fmt.Errorf("name字段类型异常: %T", out[0]), id)
	}
	dna, ok := out[1].(*big.Int)
	if !ok || dna == nil {
		return nil, zferrors.ReadFailed(fmt.Errorf("dna字段类型异常: %T", out[1]), id)
	}

	return &models.ZombieRecord{Name: name, DNA: dna}, nil
}

// DecodeNewZombie 把原始日志解码为NewZombie事件
// 缺失或类型不符的参数视为解码失败，不会静默置空
func (g *Gateway) DecodeNewZombie(lg types.Log) (*models.NewZombieEvent, error) {
	if len(lg.Topics) == 0 || lg.Topics[0] != g.schema.NewZombieEventID() {
		return nil, zferrors.EventDecodeFailed(
			fmt.Errorf("日志签名不匹配"), lg.TxHash.Hex(), lg.Index)
	}

	out := make(map[string]interface{})
	if err := g.schema.ABI.UnpackIntoMap(out, contract.EventNewZombie, lg.Data); err != nil {
		return nil, zferrors.EventDecodeFailed(err, lg.TxHash.Hex(), lg.Index)
	}

	zombieID, ok := out["zombieId"].(*big.Int)
	if !ok || zombieID == nil {
		return nil, zferrors.EventDecodeFailed(
			fmt.Errorf("缺少事件参数: zombieId"), lg.TxHash.Hex(), lg.Index)
	}
	if !zombieID.IsUint64() {
		return nil, zferrors.EventDecodeFailed(
			fmt.Errorf("zombieId超出uint64范围: %s", zombieID.String()), lg.TxHash.Hex(), lg.Index)
	}
	name, ok := out["name"].(string)
	if !ok {
		return nil, zferrors.EventDecodeFailed(
			fmt.Errorf("缺少事件参数: name"), lg.TxHash.Hex(), lg.Index)
	}
	dna, ok := out["dna"].(*big.Int)
	if !ok || dna == nil {
		return nil, zferrors.EventDecodeFailed(
			fmt.Errorf("缺少事件参数: dna"), lg.TxHash.Hex(), lg.Index)
	}

	return &models.NewZombieEvent{
		ZombieID:    zombieID.Uint64(),
		Name:        name,
		DNA:         dna,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.Index,
		ObservedAt:  time.Now(),
	}, nil
}

// Subscribe 订阅合约地址上的NewZombie事件
// 按节点返回的日志顺序逐条解码并回调，不重排、不缓冲、不去重
// 单条日志解码失败通过onError上报，订阅继续处理后续日志
// 返回的订阅对象通过Unsubscribe终止，重复调用为空操作
func (g *Gateway) Subscribe(ctx context.Context, onEvent func(*models.NewZombieEvent), onError func(error)) (*Subscription, error) {
	watchOpts := &bind.WatchOpts{Context: ctx}

	logs, eventSub, err := g.bound.WatchLogs(watchOpts, contract.EventNewZombie)
	if err != nil {
		return nil, zferrors.WrapError(err, zferrors.ErrorTypeConnection,
			zferrors.SeverityHigh, zferrors.CodeConnectionFailed, "注册事件过滤器失败")
	}

	sub := newSubscription(eventSub, g.logger)
	go sub.dispatch(logs, g.DecodeNewZombie, onEvent, onError)

	g.logger.Infof("已订阅NewZombie事件: %s", g.schema.Address.Hex())
	return sub, nil
}
