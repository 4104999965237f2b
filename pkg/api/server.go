package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/mtwebit/tasker/pkg/core/engine"
)

// ServerConfig API服务器配置
type ServerConfig struct {
	Host         string        // 监听地址
	Port         int           // 监听端口
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时
	RunConfig    engine.DriverConfig
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		RunConfig: engine.DriverConfig{
			RoundTimeout: 15 * time.Second,
		},
	}
}

// Server HTTP API服务器
type Server struct {
	engine     *engine.Engine
	bus        *engine.EventBus
	httpServer *http.Server
	config     ServerConfig
	version    string
	cancelLog  context.CancelFunc
}

// NewServer 创建API服务器
func NewServer(eng *engine.Engine, bus *engine.EventBus, config ServerConfig, version string) *Server {
	return &Server{
		engine:  eng,
		bus:     bus,
		config:  config,
		version: version,
	}
}

// Start 启动服务器（阻塞直到关闭）
func (s *Server) Start() error {
	router := SetupRouter(s.engine, s.config.RunConfig, s.version)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.startEventLog()

	log.Printf("🚀 Tasker API Server starting on %s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server listen failed: %w", err)
	}
	return nil
}

// startEventLog 订阅状态变更事件并写入服务日志
func (s *Server) startEventLog() {
	if s.bus == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelLog = cancel

	messages, err := s.bus.Subscribe(ctx)
	if err != nil {
		log.Printf("❌ 订阅状态变更事件失败: %v", err)
		return
	}
	go func() {
		for msg := range messages {
			ev, err := engine.DecodeStateChanged(msg)
			if err == nil {
				log.Printf("📢 任务状态变更: %s (%s) %s -> %s by %s",
					ev.Title, ev.TaskID, ev.From, ev.To, ev.Invoker)
			}
			msg.Ack()
		}
	}()
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelLog != nil {
		s.cancelLog()
	}
	if s.httpServer == nil {
		return nil
	}

	log.Println("🛑 Shutting down API Server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("✅ API Server stopped")
	return nil
}

// Addr 获取服务器地址
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
