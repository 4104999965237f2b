package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mtwebit/tasker/pkg/core/task"
)

var (
	// 全局变量
	serverURL  string
	outputJSON bool
	configPath string

	// 服务端命令（server/cron）启动时注册的工作函数
	handlerDefs []task.HandlerDef
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "tasker",
	Short: "Tasker CLI - 持久化可恢复任务引擎命令行工具",
	Long: `Tasker CLI 是一个用于管理持久化可恢复任务的命令行工具。

任务的所有状态都持久化在外部存储中，工作函数通过协作式检查点
分多轮推进，每轮都受时间/内存预算约束，进程重启后可继续执行。

支持的功能：
  - 管理任务（创建、列出、查看、激活、挂起、终止、重置、删除）
  - 按需执行一轮任务
  - 启动HTTP API服务（含进程内定时驱动）
  - 作为系统cron的单轮入口

使用示例：
  # 列出所有任务
  tasker task list

  # 激活并按需执行一轮
  tasker task activate <task-id>
  tasker task run <task-id>

  # 启动HTTP服务
  tasker server --port 8080

  # 系统cron每分钟触发一轮（crontab: * * * * * tasker cron）
  tasker cron`,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// RegisterHandlers 注册工作函数
// 嵌入方在Execute之前调用，server/cron命令启动引擎时生效
func RegisterHandlers(defs ...task.HandlerDef) {
	handlerDefs = append(handlerDefs, defs...)
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Tasker服务器地址")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tasker.yaml", "配置文件路径")

	// 添加子命令
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(cronCmd)
	rootCmd.AddCommand(versionCmd)
}
