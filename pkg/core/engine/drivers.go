package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mtwebit/tasker/pkg/core/task"
	"github.com/mtwebit/tasker/pkg/storage"
)

// 驱动默认参数
const (
	DefaultTimerInterval = time.Minute      // 进程内定时驱动的默认触发间隔
	DefaultTimerTimeout  = 15 * time.Second // 定时驱动单轮的默认时间预算
	DefaultCronTimeout   = 18000 * time.Second
	DefaultTimerCeiling  = 2 // 定时驱动的并发运行上限
	DefaultCronCeiling   = 3 // 系统cron驱动的并发运行上限
)

// DriverConfig 调度驱动的运行参数（对外导出）
type DriverConfig struct {
	RoundTimeout time.Duration // 单轮执行的时间预算
	MemoryLimit  uint64        // 内存预算（字节），0表示不限制
	MaxRunning   int           // 并发运行任务数上限
}

// selectAndRun 候选选择与重试循环
// 选取一个激活且未被占用的候选任务尝试执行；被拒绝时排除该任务换下一个候选，
// 候选耗尽或并发上限已满时结束本轮
func (e *Engine) selectAndRun(ctx context.Context, invoker string, cfg DriverConfig) (*Outcome, *storage.TaskRecord, error) {
	// 并发上限：统计当前running=true的记录数
	runningFlag := true
	running, err := e.repo.Count(ctx, storage.Filter{Running: &runningFlag})
	if err != nil {
		return nil, nil, e.storeProbe(ctx, err)
	}
	if cfg.MaxRunning > 0 && running >= cfg.MaxRunning {
		log.Printf("⏳ [%s] 并发运行任务数已达上限 (%d)，本轮跳过", invoker, cfg.MaxRunning)
		return nil, nil, nil
	}

	deadline := time.Time{}
	if cfg.RoundTimeout > 0 {
		deadline = time.Now().Add(cfg.RoundTimeout)
	}
	params := RunParams{Invoker: invoker, Deadline: deadline, MemoryLimit: cfg.MemoryLimit}

	active := task.StateActive
	notRunning := false
	var exclude []string
	for {
		candidate, err := e.repo.FindOne(ctx, storage.Filter{
			State:      &active,
			Running:    &notRunning,
			ExcludeIDs: exclude,
		})
		if err != nil {
			return nil, nil, e.storeProbe(ctx, err)
		}
		if candidate == nil {
			// 没有可执行的候选任务
			return nil, nil, nil
		}

		outcome, err := e.Execute(ctx, candidate.ID, params)
		if err != nil {
			return nil, nil, err
		}
		if outcome.Status == RunRejected {
			// 换下一个候选重试
			exclude = append(exclude, candidate.ID)
			continue
		}
		return outcome, candidate, nil
	}
}

// RunOnDemand 按需执行指定任务（请求触发的驱动入口）
func (e *Engine) RunOnDemand(ctx context.Context, id string, invoker string, cfg DriverConfig) (*Outcome, error) {
	deadline := time.Time{}
	if cfg.RoundTimeout > 0 {
		deadline = time.Now().Add(cfg.RoundTimeout)
	}
	return e.Execute(ctx, id, RunParams{
		Invoker:     invoker,
		Deadline:    deadline,
		MemoryLimit: cfg.MemoryLimit,
	})
}

// RunBySchedulerOnce 系统cron驱动入口
// 每次系统cron触发新进程时执行一轮，返回执行的任务记录（未选中候选时为nil）
func (e *Engine) RunBySchedulerOnce(ctx context.Context, cfg DriverConfig) (*Outcome, *storage.TaskRecord, error) {
	if cfg.RoundTimeout == 0 {
		cfg.RoundTimeout = DefaultCronTimeout
	}
	if cfg.MaxRunning == 0 {
		cfg.MaxRunning = DefaultCronCeiling
	}
	return e.selectAndRun(ctx, "cron", cfg)
}

// TimerDriver 进程内周期定时驱动（对外导出）
// 按固定间隔触发一轮候选选择与执行
type TimerDriver struct {
	engine   *Engine
	cron     *cron.Cron
	interval time.Duration
	cfg      DriverConfig
	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewTimerDriver 创建定时驱动
func NewTimerDriver(eng *Engine, interval time.Duration, cfg DriverConfig) *TimerDriver {
	if interval <= 0 {
		interval = DefaultTimerInterval
	}
	if cfg.RoundTimeout == 0 {
		cfg.RoundTimeout = DefaultTimerTimeout
	}
	if cfg.MaxRunning == 0 {
		cfg.MaxRunning = DefaultTimerCeiling
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerDriver{
		engine:   eng,
		cron:     cron.New(),
		interval: interval,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动定时驱动
func (d *TimerDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("定时驱动已启动")
	}

	spec := fmt.Sprintf("@every %s", d.interval)
	if _, err := d.cron.AddFunc(spec, d.tick); err != nil {
		return fmt.Errorf("注册定时触发失败: %w", err)
	}
	d.cron.Start()
	d.running = true
	log.Printf("✅ [定时驱动] 已启动, interval=%s timeout=%s ceiling=%d", d.interval, d.cfg.RoundTimeout, d.cfg.MaxRunning)
	return nil
}

// Stop 停止定时驱动（等待当前轮结束）
func (d *TimerDriver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.cancel()
	stopCtx := d.cron.Stop()
	<-stopCtx.Done()
	d.running = false
	log.Println("✅ [定时驱动] 已停止")
}

// tick 一次定时触发：执行一轮候选选择
func (d *TimerDriver) tick() {
	outcome, rec, err := d.engine.selectAndRun(d.ctx, "timer", d.cfg)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			// 存储层不可用：本轮中止，下个周期重试
			log.Printf("💥 [定时驱动] 存储层不可用，本轮中止: %v", err)
			return
		}
		log.Printf("❌ [定时驱动] 本轮执行失败: %v", err)
		return
	}
	if rec != nil {
		log.Printf("⏱️ [定时驱动] 本轮结束: %s status=%s", rec.Title, outcome.Status)
	}
}
