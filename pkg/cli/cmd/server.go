package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtwebit/tasker/pkg/api"
	"github.com/mtwebit/tasker/pkg/cli/output"
	"github.com/mtwebit/tasker/pkg/config"
	"github.com/mtwebit/tasker/pkg/core/engine"
)

var (
	serverPort int
	serverHost string
)

// serverCmd server子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动HTTP API服务",
	Long: `启动Tasker HTTP API服务。

配置中启用定时驱动时，同一进程内会按固定间隔触发任务调度。

示例：
  # 使用默认配置启动
  tasker server

  # 指定端口启动
  tasker server --port 8080

  # 指定配置文件启动
  tasker server --config ./tasker.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			output.Error("加载配置失败: %v", err)
			return err
		}
		if serverPort > 0 {
			cfg.API.Port = serverPort
		}
		if serverHost != "" {
			cfg.API.Host = serverHost
		}

		eng, bus, err := buildEngine(cfg, true)
		if err != nil {
			output.Error("创建引擎失败: %v", err)
			return err
		}
		defer eng.Repo().Close()
		if bus != nil {
			defer bus.Close()
		}

		// 进程内定时驱动
		var timer *engine.TimerDriver
		if cfg.Scheduler.TimerEnabled {
			timer = engine.NewTimerDriver(eng, cfg.Scheduler.TimerInterval.Std(), engine.DriverConfig{
				RoundTimeout: cfg.Scheduler.TimerTimeout.Std(),
				MemoryLimit:  cfg.Scheduler.MemoryLimit,
				MaxRunning:   cfg.Scheduler.TimerMaxRunning,
			})
			if err := timer.Start(); err != nil {
				output.Error("启动定时驱动失败: %v", err)
				return err
			}
		}

		serverCfg := api.ServerConfig{
			Host:         cfg.API.Host,
			Port:         cfg.API.Port,
			ReadTimeout:  api.DefaultServerConfig().ReadTimeout,
			WriteTimeout: api.DefaultServerConfig().WriteTimeout,
			RunConfig: engine.DriverConfig{
				RoundTimeout: cfg.API.Timeout.Std(),
				MemoryLimit:  cfg.Scheduler.MemoryLimit,
			},
		}
		apiServer := api.NewServer(eng, bus, serverCfg, Version)

		go func() {
			if err := apiServer.Start(); err != nil {
				log.Printf("API服务器错误: %v", err)
			}
		}()

		output.Success("Tasker Server started on %s", apiServer.Addr())

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		output.Info("正在关闭服务...")

		if timer != nil {
			timer.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			output.Error("关闭API服务器失败: %v", err)
		}

		output.Success("服务已停止")
		return nil
	},
}

func init() {
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "监听端口（覆盖配置文件）")
	serverCmd.Flags().StringVarP(&serverHost, "host", "H", "", "监听地址（覆盖配置文件）")
}
