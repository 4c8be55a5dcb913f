package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"zombiefactory/internal/api"
	"zombiefactory/internal/config"
	"zombiefactory/internal/contract"
	"zombiefactory/internal/gateway"
	"zombiefactory/internal/logging"
	"zombiefactory/internal/progress"
	"zombiefactory/internal/sink"
	"zombiefactory/internal/wallet"
	"zombiefactory/internal/watcher"
)

var (
	configPath  = flag.String("config", "configs/config.yaml", "配置文件路径")
	listen      = flag.String("listen", "", "监听地址，覆盖配置文件")
	enableWatch = flag.Bool("watch", true, "同时启动事件监听")
	verbose     = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	if *verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.NewLogrusLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("配置无效: %v", err)
	}

	var schema *contract.Schema
	if cfg.Contract.ArtifactPath != "" {
		schema, err = contract.NewSchemaFromArtifact(cfg.Contract.Address, cfg.Contract.ArtifactPath)
	} else {
		schema, err = contract.NewSchema(cfg.Contract.Address)
	}
	if err != nil {
		logger.Fatalf("构建合约描述失败: %v", err)
	}

	client, err := ethclient.Dial(cfg.Node.URL)
	if err != nil {
		logger.Fatalf("连接节点失败: %v", err)
	}
	defer client.Close()

	// 钱包可选，未配置时创建接口返回错误但查询接口仍可用
	var signer gateway.Signer
	if cfg.Wallet.Account != "" {
		w, err := wallet.New(
			cfg.Wallet.KeystoreDir,
			cfg.Wallet.Account,
			cfg.Wallet.PasswordFile,
			cfg.Contract.ChainID,
			logger,
		)
		if err != nil {
			logger.Fatalf("初始化钱包失败: %v", err)
		}
		signer = w
	}

	gw := gateway.New(schema, client, signer, logger)

	events := api.NewEventBuffer(api.DefaultBufferSize)

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()

	var progressMgr *progress.Manager
	if *enableWatch {
		progressMgr, err = progress.NewManager(cfg.Watcher.DBPath, logger)
		if err != nil {
			logger.Fatalf("初始化检查点失败: %v", err)
		}
		defer progressMgr.Close()

		pollInterval, err := time.ParseDuration(cfg.Watcher.PollInterval)
		if err != nil {
			logger.Fatalf("无效的轮询间隔 '%s': %v", cfg.Watcher.PollInterval, err)
		}

		eventSink, err := sink.NewSink(cfg.Sink.Type, cfg.Sink, logger)
		if err != nil {
			logger.Fatalf("创建事件输出失败: %v", err)
		}
		defer eventSink.Close()

		// 事件同时进入外部Sink和API的最近事件缓冲
		w, err := watcher.New(client, schema, gw, progressMgr, []sink.Sink{eventSink, events}, &watcher.Config{
			PollInterval:  pollInterval,
			Confirmations: cfg.Watcher.Confirmations,
			BatchSize:     cfg.Watcher.BatchSize,
			StartBlock:    cfg.Watcher.StartBlock,
		}, logger)
		if err != nil {
			logger.Fatalf("创建事件监听器失败: %v", err)
		}

		go func() {
			if err := w.Run(watchCtx); err != nil && err != context.Canceled {
				logger.Errorf("事件监听退出: %v", err)
			}
		}()
	}

	addr := cfg.API.Listen
	if *listen != "" {
		addr = *listen
	}

	var progressReader api.ProgressReader
	if progressMgr != nil {
		progressReader = progressMgr
	}
	server := api.NewServer(gw, progressReader, events, addr, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("启动服务器失败: %v", err)
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("正在关闭服务器...")
	cancelWatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Errorf("关闭服务器失败: %v", err)
	}

	logger.Info("服务器已关闭")
}
