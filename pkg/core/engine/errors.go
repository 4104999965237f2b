package engine

import "errors"

// 执行前置条件的拒绝原因（对外导出）
// 拒绝是正常返回值的一部分，不会穿透引擎边界成为panic
var (
	// ErrTaskNotFound 任务不存在或已软删除
	ErrTaskNotFound = errors.New("task not found")
	// ErrHandlerNotFound 工作函数未注册
	ErrHandlerNotFound = errors.New("task handler not registered")
	// ErrAlreadyRunning 任务已被其他执行实例占用
	ErrAlreadyRunning = errors.New("task is already running")
	// ErrNotActive 任务不处于可执行状态
	ErrNotActive = errors.New("task is not active")
	// ErrDependenciesUnmet 前置任务尚未全部完成
	ErrDependenciesUnmet = errors.New("task dependencies not satisfied")
	// ErrBudgetExhausted 时间或内存预算在开始前已耗尽
	ErrBudgetExhausted = errors.New("execution budget exhausted")
	// ErrStoreUnavailable 存储层存活探测失败，整个调用应当中止
	ErrStoreUnavailable = errors.New("task store unavailable")
)
