package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"zombiefactory/internal/config"
	"zombiefactory/internal/contract"
	"zombiefactory/internal/gateway"
	"zombiefactory/internal/logging"
	"zombiefactory/internal/progress"
	"zombiefactory/internal/shutdown"
	"zombiefactory/internal/sink"
	"zombiefactory/internal/traits"
	"zombiefactory/internal/validation"
	"zombiefactory/internal/wallet"
	"zombiefactory/internal/watcher"
)

var (
	configFile string
	verbose    bool

	// watch参数
	startBlock    uint64
	resetProgress bool
	sinkType      string

	// get参数
	withDetails bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zombie",
		Short: "僵尸工厂合约客户端",
		Long:  `与链上僵尸工厂合约交互的命令行工具，支持创建僵尸、查询记录和监听合约事件`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "提交僵尸创建交易",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreate,
	}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "查询僵尸记录",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
	getCmd.Flags().BoolVar(&withDetails, "details", false, "同时输出推导的外观特征")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "监听NewZombie事件",
		RunE:  runWatch,
	}
	watchCmd.Flags().Uint64Var(&startBlock, "start-block", 0, "起始区块号（无历史检查点时生效）")
	watchCmd.Flags().BoolVar(&resetProgress, "reset-progress", false, "重置检查点重新扫描")
	watchCmd.Flags().StringVar(&sinkType, "sink", "", "事件输出类型 (kafka, log)，默认读取配置")

	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "查看事件扫描进度",
		RunE:  runProgress,
	}

	rootCmd.AddCommand(createCmd, getCmd, watchCmd, progressCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

// setup 加载配置并初始化日志
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.NewLogrusLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("配置无效: %w", err)
	}

	return cfg, logger, nil
}

// buildSchema 根据配置构建合约描述
func buildSchema(cfg *config.Config) (*contract.Schema, error) {
	if cfg.Contract.ArtifactPath != "" {
		return contract.NewSchemaFromArtifact(cfg.Contract.Address, cfg.Contract.ArtifactPath)
	}
	return contract.NewSchema(cfg.Contract.Address)
}

// buildGateway 连接节点并组装合约网关
func buildGateway(cfg *config.Config, logger *logrus.Logger, needSigner bool) (*gateway.Gateway, *ethclient.Client, error) {
	schema, err := buildSchema(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("构建合约描述失败: %w", err)
	}

	client, err := ethclient.Dial(cfg.Node.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("连接节点失败: %w", err)
	}

	var signer gateway.Signer
	if needSigner {
		w, err := wallet.New(
			cfg.Wallet.KeystoreDir,
			cfg.Wallet.Account,
			cfg.Wallet.PasswordFile,
			cfg.Contract.ChainID,
			logger,
		)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("初始化钱包失败: %w", err)
		}
		signer = w
	}

	return gateway.New(schema, client, signer, logger), client, nil
}

// runCreate 提交创建交易并输出交易哈希
func runCreate(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := validation.ValidateName(name); err != nil {
		return err
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	gw, client, err := buildGateway(cfg, logger, true)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	txHash, err := gw.SubmitCreation(ctx, name)
	if err != nil {
		return err
	}

	logger.Infof("交易已提交: %s", txHash.Hex())
	fmt.Println(txHash.Hex())
	return nil
}

// runGet 查询僵尸记录
func runGet(cmd *cobra.Command, args []string) error {
	id, err := validation.ParseZombieID(args[0])
	if err != nil {
		return err
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	gw, client, err := buildGateway(cfg, logger, false)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	record, err := gw.FetchRecord(ctx, id)
	if err != nil {
		return err
	}

	var out interface{}
	if withDetails {
		out = traits.Derive(id, record.Name, record.DNA)
	} else {
		out = map[string]interface{}{
			"id":   id,
			"name": record.Name,
			"dna":  record.DNAString(),
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// runWatch 启动事件监听守护进程
func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	schema, err := buildSchema(cfg)
	if err != nil {
		return fmt.Errorf("构建合约描述失败: %w", err)
	}

	client, err := ethclient.Dial(cfg.Node.URL)
	if err != nil {
		return fmt.Errorf("连接节点失败: %w", err)
	}
	defer client.Close()

	gw := gateway.New(schema, client, nil, logger)

	progressMgr, err := progress.NewManager(cfg.Watcher.DBPath, logger)
	if err != nil {
		return fmt.Errorf("初始化检查点失败: %w", err)
	}

	if resetProgress {
		logger.Info("重置扫描检查点...")
		if err := progressMgr.Reset(); err != nil {
			logger.Warnf("重置检查点失败: %v", err)
		}
	}

	st := cfg.Sink.Type
	if sinkType != "" {
		st = sinkType
	}
	eventSink, err := sink.NewSink(st, cfg.Sink, logger)
	if err != nil {
		return fmt.Errorf("创建事件输出失败: %w", err)
	}

	pollInterval, err := time.ParseDuration(cfg.Watcher.PollInterval)
	if err != nil {
		return fmt.Errorf("无效的轮询间隔 '%s': %w", cfg.Watcher.PollInterval, err)
	}

	sb := cfg.Watcher.StartBlock
	if startBlock != 0 {
		sb = startBlock
	}

	w, err := watcher.New(client, schema, gw, progressMgr, []sink.Sink{eventSink}, &watcher.Config{
		PollInterval:  pollInterval,
		Confirmations: cfg.Watcher.Confirmations,
		BatchSize:     cfg.Watcher.BatchSize,
		StartBlock:    sb,
	}, logger)
	if err != nil {
		return fmt.Errorf("创建事件监听器失败: %w", err)
	}

	// 优雅停机：先停扫描，再刷新输出，最后保存检查点
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	watcherDone := make(chan error, 1)

	sd := shutdown.NewManager(30*time.Second, logger)
	sd.Register("watcher", func(ctx context.Context) error {
		cancelWatch()
		select {
		case <-watcherDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, shutdown.OrderStopWatcher)
	sd.Register("event_sink", func(ctx context.Context) error {
		return eventSink.Close()
	}, shutdown.OrderFlushSinks)
	sd.Register("checkpoint", func(ctx context.Context) error {
		return progressMgr.Close()
	}, shutdown.OrderSaveCheckpoint)
	sd.Start()

	go func() {
		err := w.Run(watchCtx)
		if err != nil && err != context.Canceled {
			logger.Errorf("事件监听退出: %v", err)
		}
		watcherDone <- err
		// 监听自行退出时也走停机流程并解除信号等待
		sd.Close()
	}()

	sd.Wait()
	return nil
}

// runProgress 打印扫描进度
func runProgress(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	progressMgr, err := progress.NewManager(cfg.Watcher.DBPath, logger)
	if err != nil {
		return fmt.Errorf("打开检查点失败: %w", err)
	}
	defer progressMgr.Close()

	data, err := json.MarshalIndent(progressMgr.Stats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
