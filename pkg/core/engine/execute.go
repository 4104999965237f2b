package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtwebit/tasker/pkg/core/task"
	"github.com/mtwebit/tasker/pkg/storage"
)

// RunParams 单轮执行的参数（对外导出）
type RunParams struct {
	Invoker     string    // 触发本轮执行的调用方标识（timer/cron/ondemand/api）
	Deadline    time.Time // 绝对截止时间，零值表示不限时
	MemoryLimit uint64    // 内存预算（字节），0表示不限制
}

// RunStatus 单轮执行的结果分类
type RunStatus int

const (
	RunRejected    RunStatus = iota // 前置条件不满足，未开始执行
	RunFailed                       // 工作函数硬失败或panic
	RunPreempted                    // 预算耗尽被抢占，任务保持激活，进度已保存
	RunInterrupted                  // 外部kill/suspend请求在检查点被观察到
	RunProgressed                   // 本轮取得部分进展，任务保持激活
	RunFinished                     // 任务全部完成
)

var runStatusNames = map[RunStatus]string{
	RunRejected:    "rejected",
	RunFailed:      "failed",
	RunPreempted:   "preempted",
	RunInterrupted: "interrupted",
	RunProgressed:  "progressed",
	RunFinished:    "finished",
}

// String 返回结果分类名称
func (s RunStatus) String() string {
	if name, ok := runStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Outcome 单轮执行的完整结果（对外导出）
// 拒绝和可恢复失败都以结果值返回，不会穿透引擎边界；
// 只有存储层不可用才以error返回并中止整个调用
type Outcome struct {
	Status  RunStatus  // 结果分类
	State   task.State // 本轮结束后的任务状态
	Reason  error      // 拒绝原因（哨兵错误），其余情况为nil
	Message string     // 人类可读的结果描述
	Notices []string   // 本轮累积的诊断消息
}

func rejected(state task.State, reason error, format string, args ...any) *Outcome {
	return &Outcome{
		Status:  RunRejected,
		State:   state,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

// Execute 执行一轮任务
// 按顺序检查前置条件，占用运行标志，在协作式检查点协议下驱动工作函数，
// 分类结果并在单个事务中提交状态+负载+日志+进度；
// 返回error仅表示存储层故障，调用方应中止本次调用而不是继续重试
func (e *Engine) Execute(ctx context.Context, id string, params RunParams) (*Outcome, error) {
	rec, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, e.storeProbe(ctx, err)
	}
	if rec == nil || rec.Trashed {
		return rejected(task.StateUnknown, ErrTaskNotFound, "任务不存在: %s", id), nil
	}

	// 前置条件1: 工作函数必须可解析；
	// 从未取得进展的任务还要求业务对象引用仍然有效。失败是永久性结果
	fn := e.registry.Resolve(rec.Data.Handler)
	if fn == nil || (rec.Data.RecordsProcessed == 0 && rec.Data.Subject == "") {
		prev := rec.State
		rec.State = task.StateFailed
		rec.Running = false
		rec.Log += fmt.Sprintf("ERROR: 执行目标无法解析 (handler=%s, subject=%s)\n", rec.Data.Handler, rec.Data.Subject)
		if err := e.repo.CommitResult(ctx, rec); err != nil {
			return nil, e.storeProbe(ctx, err)
		}
		e.publish(rec, prev, task.StateFailed, params.Invoker)
		return &Outcome{
			Status:  RunFailed,
			State:   task.StateFailed,
			Message: fmt.Sprintf("执行目标无法解析: %s", rec.Data.Handler),
		}, nil
	}

	// 前置条件2: 前置任务必须全部满足。不满足时回到Waiting，可在满足后重试
	unmet, err := e.unmetDependencies(ctx, rec)
	if err != nil {
		return nil, e.storeProbe(ctx, err)
	}
	if len(unmet) > 0 {
		if rec.State == task.StateActive {
			if err := e.repo.SaveState(ctx, id, task.StateWaiting); err != nil {
				return nil, e.storeProbe(ctx, err)
			}
			e.publish(rec, task.StateActive, task.StateWaiting, params.Invoker)
		}
		return rejected(task.StateWaiting, ErrDependenciesUnmet, "前置任务未完成: %v", unmet), nil
	}

	// 前置条件3: 任务不能已被其他执行实例占用
	if rec.Running {
		return rejected(rec.State, ErrAlreadyRunning, "任务正在执行中: %s", rec.Title), nil
	}

	// 前置条件4: 任务必须处于激活状态
	if rec.State != task.StateActive {
		return rejected(rec.State, ErrNotActive, "任务不处于激活状态: %s (%s)", rec.Title, rec.State), nil
	}

	// 前置条件5: 时间和内存预算必须留有安全余量
	budget := Budget{Deadline: params.Deadline, MemoryLimit: params.MemoryLimit}
	if budget.Exhausted(time.Now()) {
		return rejected(task.StateActive, ErrBudgetExhausted, "执行预算不足，等待下一轮: %s", rec.Title), nil
	}

	// 条件更新占用运行标志：这是互斥的真正保障点，
	// 两个驱动同时选中同一候选时只有一个能占用成功
	claimed, err := e.repo.ClaimRunning(ctx, id)
	if err != nil {
		return nil, e.storeProbe(ctx, err)
	}
	if !claimed {
		return rejected(rec.State, ErrAlreadyRunning, "任务已被其他执行实例占用: %s", rec.Title), nil
	}
	rec.Running = true
	log.Printf("🚀 开始执行任务: %s (%s) invoker=%s", rec.Title, id, params.Invoker)

	return e.runClaimed(ctx, rec, fn, params, budget)
}

// runClaimed 在已占用运行标志的前提下驱动工作函数并提交结果
func (e *Engine) runClaimed(ctx context.Context, rec *storage.TaskRecord, fn task.JobFunc, params RunParams, budget Budget) (*Outcome, error) {
	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if !params.Deadline.IsZero() {
		runCtx, cancel = context.WithDeadline(ctx, params.Deadline)
	}
	defer cancel()

	notices := task.NewNotices()

	// 本轮是否已结束：截止后泄漏的工作函数goroutine再调用检查点时，
	// 凭该标志直接收到中断而不会写入存储
	var roundOver atomic.Bool

	// 检查点快照：负载在最近一次成功检查点时的序列化副本。
	// 超时放弃goroutine后工作函数可能还在修改负载，最终提交只能使用快照，
	// 不能再序列化活动负载；snapMu同时挡住超时瞬间还在进行中的检查点写入
	var snapMu sync.Mutex
	snapRaw, err := rec.Data.Encode()
	if err != nil {
		if saveErr := e.repo.SaveRunning(ctx, rec.ID, false); saveErr != nil {
			return nil, e.storeProbe(ctx, saveErr)
		}
		return nil, fmt.Errorf("序列化任务负载失败: %w", err)
	}
	snapProgress := rec.Progress
	snapLog := rec.Log

	checkpoint := func(updateState, checkEvents bool) (task.State, error) {
		snapMu.Lock()
		defer snapMu.Unlock()
		if roundOver.Load() {
			return rec.State, fmt.Errorf("本轮执行已结束: %w", task.ErrInterrupted)
		}

		// 1) 重算并持久化进度、负载和日志
		if p := rec.Data.Progress(); p >= 0 {
			rec.Progress = p
		}
		rec.Log = notices.DrainToLog(rec.Log)
		if err := e.repo.SaveProgress(ctx, rec); err != nil {
			return rec.State, e.storeProbe(ctx, err)
		}
		if raw, encErr := rec.Data.Encode(); encErr == nil {
			snapRaw, snapProgress, snapLog = raw, rec.Progress, rec.Log
		}

		state := rec.State
		// 2) 从存储层刷新状态，感知并发的kill/suspend请求
		if updateState {
			fresh, err := e.repo.GetByID(ctx, rec.ID)
			if err != nil {
				return state, e.storeProbe(ctx, err)
			}
			if fresh != nil && fresh.State != rec.State {
				rec.State = fresh.State
				state = fresh.State
				if state != task.StateActive {
					return state, fmt.Errorf("任务状态已被外部变更为 %s: %w", state, task.ErrInterrupted)
				}
			}
		}

		// 3) 处理挂起的中断信号（截止时间、内存预算）
		if checkEvents {
			if runCtx.Err() != nil || budget.Exhausted(time.Now()) {
				return state, fmt.Errorf("执行预算已耗尽: %w", task.ErrInterrupted)
			}
		}
		return state, nil
	}

	tc := task.NewContext(runCtx, rec.ID, rec.Title, params.Invoker, rec.Data, notices, checkpoint)

	// 故障屏障：预留一小块内存余量，panic时释放，
	// 保证内存耗尽场景下还有空间写最后的日志并标记失败
	slack := reserveFaultSlack()

	resultCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slack.Release()
				resultCh <- fmt.Errorf("工作函数panic: %v", r)
			}
		}()
		resultCh <- fn(tc)
	}()

	var runErr error
	timedOut := false
	select {
	case runErr = <-resultCh:
	case <-runCtx.Done():
		// 截止时间到达且工作函数没有在检查点让出：
		// goroutine继续在后台运行，下一个检查点会观察到中断并退出
		timedOut = true
	}
	roundOver.Store(true)
	slack.Release()

	if timedOut {
		// 被放弃的goroutine可能还在修改活动负载，回退到最近一次检查点的快照；
		// 加锁等待超时瞬间还在进行中的检查点完成，之后的检查点会因roundOver直接退出
		snapMu.Lock()
		if frozen, decErr := task.DecodeData(snapRaw); decErr == nil {
			rec.Data = frozen
		}
		rec.Progress = snapProgress
		rec.Log = snapLog
		snapMu.Unlock()
	}

	// 结果分类
	var outcome *Outcome
	switch {
	case timedOut:
		rec.State = task.StateActive
		outcome = &Outcome{
			Status:  RunPreempted,
			State:   task.StateActive,
			Message: fmt.Sprintf("时间预算耗尽，进度已保存: %s", rec.Title),
		}
	case runErr != nil && errors.Is(runErr, ErrStoreUnavailable):
		// 检查点期间存储层探测失败：不再尝试任何持久化，中止整个调用
		log.Printf("💥 存储层不可用，中止本次调用: %v", runErr)
		return nil, runErr
	case runErr != nil && errors.Is(runErr, task.ErrInterrupted):
		if rec.State == task.StateActive {
			// 预算抢占：状态不变，进度保留，等待下一轮
			outcome = &Outcome{
				Status:  RunPreempted,
				State:   task.StateActive,
				Message: fmt.Sprintf("预算耗尽被抢占，进度已保存: %s", rec.Title),
			}
		} else {
			// 外部kill/suspend已经落库，保持外部设置的状态
			outcome = &Outcome{
				Status:  RunInterrupted,
				State:   rec.State,
				Message: fmt.Sprintf("执行被外部请求中断: %s -> %s", rec.Title, rec.State),
			}
		}
	case runErr != nil:
		notices.Error("%v", runErr)
		rec.State = task.StateFailed
		outcome = &Outcome{
			Status:  RunFailed,
			State:   task.StateFailed,
			Message: fmt.Sprintf("任务执行失败: %v", runErr),
		}
	case rec.Data.Done:
		rec.State = task.StateFinished
		outcome = &Outcome{
			Status:  RunFinished,
			State:   task.StateFinished,
			Message: fmt.Sprintf("任务已完成: %s", rec.Title),
		}
	default:
		rec.State = task.StateActive
		outcome = &Outcome{
			Status:  RunProgressed,
			State:   task.StateActive,
			Message: fmt.Sprintf("本轮执行结束，任务保持激活: %s", rec.Title),
		}
	}

	// 事务性最终提交：状态+负载+日志+进度一次写入，
	// 任何路径都不把running=true留在存储层
	if p := rec.Data.Progress(); p >= 0 {
		rec.Progress = p
	}
	outcome.Notices = notices.Texts()
	rec.Log = notices.DrainToLog(rec.Log)
	rec.Running = false
	if err := e.repo.CommitResult(ctx, rec); err != nil {
		return nil, e.storeProbe(ctx, err)
	}

	log.Printf("⏱️ 任务执行结束: %s (%s) status=%s state=%s progress=%.2f",
		rec.Title, rec.ID, outcome.Status, rec.State, rec.Progress)

	if outcome.Status == RunFinished {
		e.publish(rec, task.StateActive, task.StateFinished, params.Invoker)
		// 级联激活后续任务（非强制：前置未满足的保持Waiting）
		e.cascadeSuccessors(ctx, rec, params.Invoker)
	} else if outcome.Status == RunFailed {
		e.publish(rec, task.StateActive, task.StateFailed, params.Invoker)
	}

	return outcome, nil
}

// storeProbe 持久化失败后的存活探测
// 探测失败说明存储层整体不可用，包装为ErrStoreUnavailable让调用方中止整个调用；
// 探测成功则原样返回错误，外层触发器下个周期会重试
func (e *Engine) storeProbe(ctx context.Context, cause error) error {
	if pingErr := e.repo.Ping(ctx); pingErr != nil {
		return fmt.Errorf("%w: %v (起因: %v)", ErrStoreUnavailable, pingErr, cause)
	}
	return cause
}
