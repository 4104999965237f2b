package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mtwebit/tasker/pkg/api/dto"
	"github.com/mtwebit/tasker/pkg/cli/output"
	"github.com/mtwebit/tasker/pkg/cli/taskerclient"
)

var (
	createHandler    string
	createSubject    string
	createTitle      string
	createMaxRecords int64
	createMilestone  int64
	listState        string
	activateForce    bool
)

// taskCmd task子命令
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "任务管理命令",
	Long:  `管理Tasker任务的完整生命周期。`,
}

// taskListCmd 列出任务
var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出任务",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := taskerclient.New(serverURL)
		tasks, err := client.ListTasks(listState)
		if err != nil {
			output.Error("获取任务列表失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(tasks)
		}

		if len(tasks) == 0 {
			output.Info("没有任务")
			return nil
		}

		table := output.NewTable([]string{"ID", "TITLE", "STATE", "RUNNING", "SUMMARY"})
		for _, t := range tasks {
			running := ""
			if t.Running {
				running = "yes"
			}
			table.AddRow([]string{t.TaskID, t.TaskInfo, output.ColorState(t.TaskStateInfo), running, t.Summary})
		}
		table.Render()
		return nil
	},
}

// taskStatusCmd 查看任务详情
var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "查看任务状态",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := taskerclient.New(serverURL)
		t, err := client.GetTask(args[0])
		if err != nil {
			output.Error("获取任务失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(t)
		}

		fmt.Printf("ID:       %s\n", t.TaskID)
		fmt.Printf("Title:    %s\n", t.TaskInfo)
		fmt.Printf("Subject:  %s\n", t.Subject)
		fmt.Printf("Handler:  %s\n", t.Handler)
		fmt.Printf("State:    %s (%d)\n", output.ColorState(t.TaskStateInfo), t.TaskState)
		fmt.Printf("Running:  %v\n", t.Running)
		fmt.Printf("Progress: %.2f%%\n", t.Progress)
		fmt.Printf("Summary:  %s\n", t.Summary)
		fmt.Printf("Created:  %s\n", t.CreateTime)
		if len(t.Dependencies) > 0 {
			fmt.Printf("Deps:     %v\n", t.Dependencies)
		}
		if len(t.Successors) > 0 {
			fmt.Printf("Next:     %v\n", t.Successors)
		}
		if t.Log != "" {
			fmt.Printf("Log:\n%s\n", t.Log)
		}
		return nil
	},
}

// taskCreateCmd 创建任务
var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "创建任务",
	Long: `创建一个新任务。

示例：
  tasker task create --handler import-pages --subject page:1042 \
    --title "导入页面" --max-records 5000 --milestone 100`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := taskerclient.New(serverURL)
		resp, err := client.CreateTask(dto.CreateTaskRequest{
			Handler:    createHandler,
			Subject:    createSubject,
			Title:      createTitle,
			MaxRecords: createMaxRecords,
			Milestone:  createMilestone,
		})
		if err != nil {
			output.Error("创建任务失败: %v", err)
			return err
		}
		if resp.Created {
			output.Success("任务已创建: %s", resp.TaskID)
		} else {
			output.Warn("任务已存在（重复请求）: %s", resp.TaskID)
		}
		return nil
	},
}

func commandRunE(action string, call func(*taskerclient.Client, string) (*dto.CommandResponse, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client := taskerclient.New(serverURL)
		res, err := call(client, args[0])
		if err != nil {
			output.Error("%s失败: %v", action, err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(res)
		}
		if res.Status {
			output.Success("%s", res.Result)
		} else {
			output.Warn("%s", res.Result)
		}
		for _, n := range res.Notices {
			output.Info("%s", n)
		}
		return nil
	}
}

// taskActivateCmd 激活任务
var taskActivateCmd = &cobra.Command{
	Use:   "activate <task-id>",
	Short: "激活任务",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandRunE("激活", func(c *taskerclient.Client, id string) (*dto.CommandResponse, error) {
			return c.Activate(id, activateForce)
		})(cmd, args)
	},
}

// taskSuspendCmd 挂起任务
var taskSuspendCmd = &cobra.Command{
	Use:   "suspend <task-id>",
	Short: "挂起任务",
	Args:  cobra.ExactArgs(1),
	RunE:  commandRunE("挂起", (*taskerclient.Client).Suspend),
}

// taskKillCmd 终止任务
var taskKillCmd = &cobra.Command{
	Use:   "kill <task-id>",
	Short: "终止任务",
	Args:  cobra.ExactArgs(1),
	RunE:  commandRunE("终止", (*taskerclient.Client).Kill),
}

// taskResetCmd 重置任务
var taskResetCmd = &cobra.Command{
	Use:   "reset <task-id>",
	Short: "重置任务（清零进度和日志）",
	Args:  cobra.ExactArgs(1),
	RunE:  commandRunE("重置", (*taskerclient.Client).Reset),
}

// taskRestartCmd 重启任务
var taskRestartCmd = &cobra.Command{
	Use:   "restart <task-id>",
	Short: "重启任务（重置后强制激活）",
	Args:  cobra.ExactArgs(1),
	RunE:  commandRunE("重启", (*taskerclient.Client).Restart),
}

// taskTrashCmd 软删除任务
var taskTrashCmd = &cobra.Command{
	Use:   "trash <task-id>",
	Short: "删除任务（软删除）",
	Args:  cobra.ExactArgs(1),
	RunE:  commandRunE("删除", (*taskerclient.Client).Trash),
}

// taskRunCmd 按需执行一轮
var taskRunCmd = &cobra.Command{
	Use:   "run <task-id>",
	Short: "按需执行一轮任务",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := taskerclient.New(serverURL)
		res, err := client.Run(args[0])
		if err != nil {
			output.Error("执行失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(res)
		}
		output.Info("status=%s state=%s progress=%.2f%%", res.Status, res.TaskStateInfo, res.Progress)
		output.Info("%s", res.Result)
		for _, n := range res.Notices {
			fmt.Println("  " + n)
		}
		return nil
	},
}

// taskDependCmd 追加前置任务
var taskDependCmd = &cobra.Command{
	Use:   "depend <task-id> <depends-on-id>",
	Short: "追加前置任务",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := taskerclient.New(serverURL)
		if err := client.AddDependency(args[0], args[1]); err != nil {
			output.Error("追加前置任务失败: %v", err)
			return err
		}
		output.Success("前置任务已追加: %s <- %s", args[0], args[1])
		return nil
	},
}

// taskFollowCmd 追加后续任务
var taskFollowCmd = &cobra.Command{
	Use:   "follow <task-id> <successor-id>",
	Short: "追加后续任务（前置完成时级联激活）",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := taskerclient.New(serverURL)
		if err := client.AddSuccessor(args[0], args[1]); err != nil {
			output.Error("追加后续任务失败: %v", err)
			return err
		}
		output.Success("后续任务已追加: %s -> %s", args[0], args[1])
		return nil
	},
}

// taskHandlersCmd 列出工作函数
var taskHandlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "列出已注册的工作函数",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := taskerclient.New(serverURL)
		handlers, err := client.ListHandlers()
		if err != nil {
			output.Error("获取工作函数列表失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(handlers)
		}
		table := output.NewTable([]string{"NAME", "DESCRIPTION"})
		for _, h := range handlers {
			table.AddRow([]string{h.Name, h.Description})
		}
		table.Render()
		return nil
	},
}

func init() {
	taskListCmd.Flags().StringVar(&listState, "state", "", "按状态过滤 (waiting/active/suspended/finished/killed/failed)")

	taskCreateCmd.Flags().StringVar(&createHandler, "handler", "", "工作函数名称")
	taskCreateCmd.Flags().StringVar(&createSubject, "subject", "", "业务对象标识")
	taskCreateCmd.Flags().StringVar(&createTitle, "title", "", "任务标题")
	taskCreateCmd.Flags().Int64Var(&createMaxRecords, "max-records", 0, "总记录数（0表示未知）")
	taskCreateCmd.Flags().Int64Var(&createMilestone, "milestone", 0, "检查点里程碑阈值")
	taskCreateCmd.MarkFlagRequired("handler")
	taskCreateCmd.MarkFlagRequired("subject")
	taskCreateCmd.MarkFlagRequired("title")

	taskActivateCmd.Flags().BoolVarP(&activateForce, "force", "f", false, "跳过前置任务检查并允许从任意状态激活")

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskActivateCmd)
	taskCmd.AddCommand(taskSuspendCmd)
	taskCmd.AddCommand(taskKillCmd)
	taskCmd.AddCommand(taskResetCmd)
	taskCmd.AddCommand(taskRestartCmd)
	taskCmd.AddCommand(taskTrashCmd)
	taskCmd.AddCommand(taskRunCmd)
	taskCmd.AddCommand(taskDependCmd)
	taskCmd.AddCommand(taskFollowCmd)
	taskCmd.AddCommand(taskHandlersCmd)
}
