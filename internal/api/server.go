package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	factoryerrors "zombiefactory/internal/errors"
	"zombiefactory/internal/traits"
	"zombiefactory/internal/validation"
	"zombiefactory/pkg/models"
)

// ContractClient 合约访问接口
type ContractClient interface {
	SubmitCreation(ctx context.Context, name string) (common.Hash, error)
	FetchRecord(ctx context.Context, id uint64) (*models.ZombieRecord, error)
}

// ProgressReader 扫描进度查询接口
type ProgressReader interface {
	Stats() map[string]interface{}
}

// Server API服务器
type Server struct {
	client   ContractClient
	progress ProgressReader
	events   *EventBuffer
	logger   *logrus.Logger
	server   *http.Server
	listen   string
	mu       sync.RWMutex
}

// NewServer 创建API服务器
func NewServer(client ContractClient, progress ProgressReader, events *EventBuffer, listen string, logger *logrus.Logger) *Server {
	return &Server{
		client:   client,
		progress: progress,
		events:   events,
		logger:   logger,
		listen:   listen,
	}
}

// Start 启动API服务器，阻塞直到服务退出
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// CORS中间件
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	s.setupRoutes(router)

	s.mu.Lock()
	s.server = &http.Server{
		Addr:    s.listen,
		Handler: router,
	}
	s.mu.Unlock()

	s.logger.Infof("API服务器启动在 %s", s.listen)
	return s.server.ListenAndServe()
}

// Stop 停止API服务器
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		s.logger.Info("正在停止API服务器")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Router 构建路由（测试入口）
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	s.setupRoutes(router)
	return router
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)

	api := router.Group("/api/v1")
	{
		api.POST("/zombies", s.createZombie)
		api.GET("/zombies/:id", s.getZombie)
		api.GET("/zombies/:id/details", s.getZombieDetails)
		api.GET("/events/recent", s.getRecentEvents)
		api.GET("/progress", s.getProgress)
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "zombie-factory-api",
	})
}

// createZombie 提交僵尸创建交易
func (s *Server) createZombie(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.ValidateName(req.Name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txHash, err := s.client.SubmitCreation(c.Request.Context(), req.Name)
	if err != nil {
		status := http.StatusBadGateway
		if factoryerrors.IsCode(err, factoryerrors.CodeSimulationReverted) {
			// 预执行回滚说明请求本身会失败，按客户端错误返回
			status = http.StatusUnprocessableEntity
		}
		s.logger.Errorf("创建僵尸失败: %v", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"tx_hash": txHash.Hex(),
		"name":    req.Name,
		"status":  "submitted",
	})
}

// getZombie 查询僵尸记录
func (s *Server) getZombie(c *gin.Context) {
	id, err := validation.ParseZombieID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := s.client.FetchRecord(c.Request.Context(), id)
	if err != nil {
		s.logger.Errorf("查询僵尸 %d 失败: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":   id,
		"name": record.Name,
		"dna":  record.DNAString(),
	})
}

// getZombieDetails 查询僵尸记录并推导外观特征
func (s *Server) getZombieDetails(c *gin.Context) {
	id, err := validation.ParseZombieID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := s.client.FetchRecord(c.Request.Context(), id)
	if err != nil {
		s.logger.Errorf("查询僵尸 %d 失败: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, traits.Derive(id, record.Name, record.DNA))
}

// getRecentEvents 查询最近捕获的事件
func (s *Server) getRecentEvents(c *gin.Context) {
	var events []*models.NewZombieEvent
	if s.events != nil {
		events = s.events.Recent()
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// getProgress 查询事件扫描进度
func (s *Server) getProgress(c *gin.Context) {
	if s.progress == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "事件监听未启用"})
		return
	}

	c.JSON(http.StatusOK, s.progress.Stats())
}
