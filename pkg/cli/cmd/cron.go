package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mtwebit/tasker/pkg/cli/output"
	"github.com/mtwebit/tasker/pkg/config"
	"github.com/mtwebit/tasker/pkg/core/engine"
)

// cronCmd 系统cron单轮入口
// 每次由系统cron拉起新进程，选取一个候选任务执行一轮后退出
var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "执行一轮任务调度（系统cron入口）",
	Long: `选取一个激活且未被占用的任务执行一轮，然后退出。

由系统cron周期性触发，例如crontab：
  * * * * * tasker cron --config /etc/tasker.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			output.Error("加载配置失败: %v", err)
			return err
		}

		eng, _, err := buildEngine(cfg, false)
		if err != nil {
			output.Error("创建引擎失败: %v", err)
			return err
		}
		defer eng.Repo().Close()

		outcome, rec, err := eng.RunBySchedulerOnce(context.Background(), engine.DriverConfig{
			RoundTimeout: cfg.Scheduler.CronTimeout.Std(),
			MemoryLimit:  cfg.Scheduler.MemoryLimit,
			MaxRunning:   cfg.Scheduler.CronMaxRunning,
		})
		if err != nil {
			output.Error("本轮调度失败: %v", err)
			return err
		}
		if rec == nil {
			output.Info("没有可执行的任务")
			return nil
		}

		output.Success("%s: %s", rec.Title, outcome.Message)

		// 打印本轮结束后的任务日志
		fresh, err := eng.GetTask(context.Background(), rec.ID)
		if err == nil && fresh != nil && fresh.Log != "" {
			fmt.Println(fresh.Log)
		}
		return nil
	},
}
