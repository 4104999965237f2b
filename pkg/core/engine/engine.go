package engine

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/mtwebit/tasker/pkg/core/task"
	"github.com/mtwebit/tasker/pkg/storage"
)

// Engine 任务执行引擎（对外导出）
// 负责任务的生命周期操作和单轮执行：建立资源预算、驱动工作函数、
// 分类执行结果并原子提交状态与进度
type Engine struct {
	repo     storage.TaskRepository
	registry *task.HandlerRegistry
	bus      *EventBus // 可为nil（不发布事件）
	debug    bool
}

// NewEngine 创建执行引擎
func NewEngine(repo storage.TaskRepository, registry *task.HandlerRegistry, bus *EventBus, debug bool) *Engine {
	return &Engine{
		repo:     repo,
		registry: registry,
		bus:      bus,
		debug:    debug,
	}
}

// Registry 工作函数注册中心
func (e *Engine) Registry() *task.HandlerRegistry {
	return e.registry
}

// Repo 底层任务存储
func (e *Engine) Repo() storage.TaskRepository {
	return e.repo
}

// CommandResult 生命周期命令的执行结果（对外导出）
// 每个命令都返回成功标志、人类可读的结果描述和累积的诊断消息
type CommandResult struct {
	OK      bool       // 命令是否成功
	Result  string     // 人类可读的结果描述
	State   task.State // 命令完成后的任务状态
	Notices []string   // 累积的诊断消息
}

func commandOK(state task.State, format string, args ...any) *CommandResult {
	return &CommandResult{OK: true, Result: fmt.Sprintf(format, args...), State: state}
}

func commandFail(state task.State, format string, args ...any) *CommandResult {
	return &CommandResult{OK: false, Result: fmt.Sprintf(format, args...), State: state}
}

// CreateTask 创建任务
// 同一业务对象下已有相同签名的未删除任务时视为重复请求，
// 直接返回已存在的记录而不是创建第二条
func (e *Engine) CreateTask(ctx context.Context, handler, subject, title string, data *task.Data) (*storage.TaskRecord, bool, error) {
	if !e.registry.Exists(handler) {
		return nil, false, fmt.Errorf("%w: %s", ErrHandlerNotFound, handler)
	}
	if data == nil {
		data = &task.Data{}
	}
	data.Handler = handler
	data.Subject = subject

	sig, err := data.Signature()
	if err != nil {
		return nil, false, err
	}

	// 重复任务检测：按(业务对象, 签名)查找未删除记录
	existing, err := e.repo.FindOne(ctx, storage.Filter{Subject: subject, Signature: sig})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		log.Printf("⚠️ 任务已存在，返回原记录: %s (%s)", existing.Title, existing.ID)
		return existing, false, nil
	}

	rec := &storage.TaskRecord{
		Title:     title,
		Subject:   subject,
		Data:      data,
		Signature: sig,
		State:     task.StateWaiting,
	}
	id, err := e.repo.Create(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	rec.ID = id
	log.Printf("✅ 任务已创建: %s (%s)", title, id)
	e.publish(rec, task.StateUnknown, task.StateWaiting, "create")
	return rec, true, nil
}

// GetTask 查询任务记录
func (e *Engine) GetTask(ctx context.Context, id string) (*storage.TaskRecord, error) {
	return e.repo.GetByID(ctx, id)
}

// ListTasks 列出任务记录
func (e *Engine) ListTasks(ctx context.Context, f storage.Filter) ([]*storage.TaskRecord, error) {
	return e.repo.Find(ctx, f)
}

// Activate 激活任务使其可被调度执行
// 幂等：对已激活的任务重复调用视为成功；
// force为true时跳过前置任务检查并允许从任意状态激活
func (e *Engine) Activate(ctx context.Context, id string, force bool) (*CommandResult, error) {
	rec, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return commandFail(task.StateUnknown, "任务不存在: %s", id), nil
	}
	if rec.State == task.StateActive {
		// 重复激活视为幂等成功
		return commandOK(task.StateActive, "任务已处于激活状态: %s", rec.Title), nil
	}
	if !force {
		if rec.State == task.StateFinished {
			return commandFail(rec.State, "已完成的任务需要reset或强制激活: %s", rec.Title), nil
		}
		unmet, err := e.unmetDependencies(ctx, rec)
		if err != nil {
			return nil, err
		}
		if len(unmet) > 0 {
			return commandFail(rec.State, "前置任务未完成，无法激活: %s (等待 %v)", rec.Title, unmet), nil
		}
	}

	prev := rec.State
	if err := e.repo.SaveState(ctx, id, task.StateActive); err != nil {
		return nil, err
	}
	log.Printf("🚀 任务已激活: %s (%s)", rec.Title, id)
	e.publish(rec, prev, task.StateActive, "activate")
	return commandOK(task.StateActive, "任务已激活: %s", rec.Title), nil
}

// ActivateMany 批量激活一组任务
// 逐个尝试，单个激活失败不中断整组
func (e *Engine) ActivateMany(ctx context.Context, ids []string, force bool) (map[string]*CommandResult, error) {
	results := make(map[string]*CommandResult, len(ids))
	for _, id := range ids {
		res, err := e.Activate(ctx, id, force)
		if err != nil {
			return results, err
		}
		results[id] = res
	}
	return results, nil
}

// Suspend 挂起处于激活状态的任务
// 无进度时回到Waiting，有进度时进入Suspended；
// 正在执行的实例在下一个检查点观察到状态变化后主动退出
func (e *Engine) Suspend(ctx context.Context, id string) (*CommandResult, error) {
	rec, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return commandFail(task.StateUnknown, "任务不存在: %s", id), nil
	}
	if rec.State != task.StateActive {
		return commandFail(rec.State, "任务不处于激活状态，无法挂起: %s", rec.Title), nil
	}

	target := task.SuspendTarget(rec.Progress)
	if err := e.repo.SaveState(ctx, id, target); err != nil {
		return nil, err
	}
	log.Printf("⏸️ 任务已挂起: %s (%s) -> %s", rec.Title, id, target)
	e.publish(rec, task.StateActive, target, "suspend")
	return commandOK(target, "任务已挂起: %s", rec.Title), nil
}

// Kill 终止任务
// 进度和日志被重置；正在执行的实例在下一个检查点观察到后主动退出
func (e *Engine) Kill(ctx context.Context, id string) (*CommandResult, error) {
	rec, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return commandFail(task.StateUnknown, "任务不存在: %s", id), nil
	}
	if rec.State.Terminal() {
		return commandFail(rec.State, "任务已处于终态，无法终止: %s", rec.Title), nil
	}

	prev := rec.State
	rec.State = task.StateKilled
	rec.Data.RecordsProcessed = 0
	rec.Data.Done = false
	rec.Progress = 0
	rec.Log = ""
	rec.Running = false
	if err := e.repo.CommitResult(ctx, rec); err != nil {
		return nil, err
	}
	log.Printf("🛑 任务已终止: %s (%s)", rec.Title, id)
	e.publish(rec, prev, task.StateKilled, "kill")
	return commandOK(task.StateKilled, "任务已终止: %s", rec.Title), nil
}

// Reset 重置任务回到等待状态
// 清零游标、里程碑、进度和日志
func (e *Engine) Reset(ctx context.Context, id string) (*CommandResult, error) {
	rec, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return commandFail(task.StateUnknown, "任务不存在: %s", id), nil
	}

	prev := rec.State
	rec.State = task.StateWaiting
	rec.Data.RecordsProcessed = 0
	rec.Data.Milestone = 0
	rec.Data.Done = false
	rec.Progress = 0
	rec.Log = ""
	rec.Running = false
	if err := e.repo.CommitResult(ctx, rec); err != nil {
		return nil, err
	}
	log.Printf("🔄 任务已重置: %s (%s)", rec.Title, id)
	e.publish(rec, prev, task.StateWaiting, "reset")
	return commandOK(task.StateWaiting, "任务已重置: %s", rec.Title), nil
}

// Trash 软删除任务
func (e *Engine) Trash(ctx context.Context, id string) (*CommandResult, error) {
	rec, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return commandFail(task.StateUnknown, "任务不存在: %s", id), nil
	}
	if err := e.repo.Trash(ctx, id); err != nil {
		return nil, err
	}
	log.Printf("🗑️ 任务已删除: %s (%s)", rec.Title, id)
	return commandOK(rec.State, "任务已删除: %s", rec.Title), nil
}

// AddDependency 为任务追加一个前置任务并持久化
func (e *Engine) AddDependency(ctx context.Context, id, dependsOn string) error {
	rec, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	other, err := e.repo.GetByID(ctx, dependsOn)
	if err != nil {
		return err
	}
	if other == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, dependsOn)
	}
	rec.Data.AddDependency(dependsOn)
	return e.repo.Save(ctx, rec)
}

// AddSuccessor 为任务追加一个后续任务并持久化
// 本任务完成时后续任务会被级联激活
func (e *Engine) AddSuccessor(ctx context.Context, id, successor string) error {
	rec, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	other, err := e.repo.GetByID(ctx, successor)
	if err != nil {
		return err
	}
	if other == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, successor)
	}
	rec.Data.AddSuccessor(successor)
	return e.repo.Save(ctx, rec)
}

// Equal 判断两个任务是否来自同一创建请求（按签名比较）
func Equal(a, b *storage.TaskRecord) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Signature == b.Signature
}

var (
	logErrorPattern   = regexp.MustCompile(`(?m)^ERROR: `)
	logWarningPattern = regexp.MustCompile(`(?m)^WARNING: `)
)

// GetLogSummary 从进度和日志文本生成简短摘要
// 形如 "42.50% 2 error(s) 1 warning(s)"，供列表视图展示
func GetLogSummary(rec *storage.TaskRecord) string {
	summary := fmt.Sprintf("%.2f%%", rec.Progress)
	if rec.Progress < 0 {
		summary = "?%"
	}
	errs := len(logErrorPattern.FindAllString(rec.Log, -1))
	warns := len(logWarningPattern.FindAllString(rec.Log, -1))
	if errs > 0 {
		summary += fmt.Sprintf(" %d error(s)", errs)
	}
	if warns > 0 {
		summary += fmt.Sprintf(" %d warning(s)", warns)
	}
	return summary
}

// publish 发布状态变更事件（尽力而为，失败仅记录日志）
func (e *Engine) publish(rec *storage.TaskRecord, from, to task.State, invoker string) {
	if e.bus == nil {
		return
	}
	ev := StateChangedEvent{
		TaskID:    rec.ID,
		Title:     rec.Title,
		From:      from,
		To:        to,
		Invoker:   invoker,
		Timestamp: time.Now(),
	}
	if err := e.bus.PublishStateChanged(ev); err != nil {
		log.Printf("❌ 发布状态变更事件失败: %v", err)
	}
}
