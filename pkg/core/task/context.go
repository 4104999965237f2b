package task

import (
	"context"
	"errors"
	"time"
)

// ErrInterrupted 检查点观察到中断（对外导出）
// 外部kill/suspend请求、超时或内存预算耗尽都会在下一次检查点转化为该错误，
// 工作函数收到后应尽快返回
var ErrInterrupted = errors.New("task interrupted at checkpoint")

// SaveFunc 检查点持久化函数，由执行引擎注入
// updateState为true时从存储层重新读取任务状态（感知外部kill/suspend），
// checkEvents为true时处理挂起的中断信号（超时、内存预算）
// 返回刷新后的任务状态
type SaveFunc func(updateState, checkEvents bool) (State, error)

// Context 任务执行上下文（对外导出）
// 工作函数通过它访问任务负载、上报诊断消息并执行检查点协议
type Context struct {
	ctx      context.Context
	TaskID   string   // 任务ID
	Title    string   // 任务标题
	Invoker  string   // 触发本轮执行的调用方标识
	Data     *Data    // 可变任务负载
	Notices  *Notices // 诊断消息收集器
	state    State    // 任务状态的内存副本，检查点时可从存储层刷新
	save     SaveFunc
	lastSave time.Time
}

// NewContext 创建任务执行上下文（由执行引擎调用）
func NewContext(ctx context.Context, taskID, title, invoker string, data *Data, notices *Notices, save SaveFunc) *Context {
	return &Context{
		ctx:      ctx,
		TaskID:   taskID,
		Title:    title,
		Invoker:  invoker,
		Data:     data,
		Notices:  notices,
		state:    StateActive,
		save:     save,
		lastSave: time.Now(),
	}
}

// Context 返回底层context.Context
func (tc *Context) Context() context.Context {
	return tc.ctx
}

// Done 底层context的取消通知
func (tc *Context) Done() <-chan struct{} {
	return tc.ctx.Done()
}

// Err 底层context的错误
func (tc *Context) Err() error {
	return tc.ctx.Err()
}

// State 任务状态的内存副本
// 仅在带updateState的检查点之后才反映外部变更
func (tc *Context) State() State {
	return tc.state
}

// Message 记录一条普通诊断消息
func (tc *Context) Message(format string, args ...any) {
	tc.Notices.Message(format, args...)
}

// Warning 记录一条警告
func (tc *Context) Warning(format string, args ...any) {
	tc.Notices.Warning(format, args...)
}

// Error 记录一条错误
func (tc *Context) Error(format string, args ...any) {
	tc.Notices.Error(format, args...)
}

// SaveProgress 执行一次检查点
// 重新计算并持久化进度，持久化负载，把累积的诊断消息排入任务日志；
// updateState/checkEvents见SaveFunc说明
// 观察到中断时返回包装了ErrInterrupted的错误
func (tc *Context) SaveProgress(updateState, checkEvents bool) error {
	state, err := tc.save(updateState, checkEvents)
	tc.state = state
	tc.lastSave = time.Now()
	return err
}

// SaveProgressAtMilestone 里程碑门控的检查点
// 仅当游标到达Data.Milestone时才真正执行检查点；
// 返回true表示里程碑已到达（调用方应设置新的里程碑）
func (tc *Context) SaveProgressAtMilestone(updateState, checkEvents bool) (bool, error) {
	if !tc.Data.MilestoneReached() {
		return false, nil
	}
	return true, tc.SaveProgress(updateState, checkEvents)
}

// SaveProgressEvery 时间门控的检查点
// 距上次持久化不足minInterval时跳过，限制紧密内层循环的检查点I/O频率
func (tc *Context) SaveProgressEvery(minInterval time.Duration, updateState, checkEvents bool) (bool, error) {
	if time.Since(tc.lastSave) < minInterval {
		return false, nil
	}
	return true, tc.SaveProgress(updateState, checkEvents)
}
