package engine_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	istorage "github.com/mtwebit/tasker/internal/storage"
	"github.com/mtwebit/tasker/pkg/core/engine"
	"github.com/mtwebit/tasker/pkg/core/task"
	"github.com/mtwebit/tasker/pkg/storage"
)

// newTestEngine 创建基于临时SQLite库的引擎
func newTestEngine(t *testing.T) (*engine.Engine, *task.HandlerRegistry, storage.TaskRepository) {
	dsn := filepath.Join(t.TempDir(), "tasker_test.db")
	repo, err := istorage.NewTaskRepository("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	registry := task.NewHandlerRegistry()
	eng := engine.NewEngine(repo, registry, nil, false)
	return eng, registry, repo
}

// finishJob 一轮完成全部工作
func finishJob(tc *task.Context) error {
	tc.Data.RecordsProcessed = tc.Data.MaxRecords
	tc.Data.Done = true
	tc.Message("全部处理完成")
	return nil
}

func TestCreateTaskDuplicateDetection(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	require.NoError(t, registry.Register("import", finishJob, ""))
	ctx := context.Background()

	rec1, created, err := eng.CreateTask(ctx, "import", "page:1", "导入页面", &task.Data{MaxRecords: 100})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, task.StateWaiting, rec1.State)
	assert.NotEmpty(t, rec1.Signature)

	// 相同handler+subject+初始负载的重复请求返回同一条记录
	rec2, created, err := eng.CreateTask(ctx, "import", "page:1", "导入页面", &task.Data{MaxRecords: 100})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec1.ID, rec2.ID)

	// 负载不同则是新任务
	rec3, created, err := eng.CreateTask(ctx, "import", "page:1", "导入页面", &task.Data{MaxRecords: 200})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, rec1.ID, rec3.ID)
}

func TestCreateTaskUnknownHandler(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, _, err := eng.CreateTask(context.Background(), "nope", "s", "t", nil)
	assert.ErrorIs(t, err, engine.ErrHandlerNotFound)
}

func TestActivateIdempotent(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	require.NoError(t, registry.Register("import", finishJob, ""))
	ctx := context.Background()

	rec, _, err := eng.CreateTask(ctx, "import", "page:1", "t", nil)
	require.NoError(t, err)

	res, err := eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, task.StateActive, res.State)

	// 重复激活为幂等成功，终态与单次激活一致
	res, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, task.StateActive, res.State)
}

func TestActivateFromFinishedNeedsForce(t *testing.T) {
	eng, registry, repo := newTestEngine(t)
	require.NoError(t, registry.Register("import", finishJob, ""))
	ctx := context.Background()

	rec, _, err := eng.CreateTask(ctx, "import", "page:1", "t", nil)
	require.NoError(t, err)
	require.NoError(t, repo.SaveState(ctx, rec.ID, task.StateFinished))

	res, err := eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)
	assert.False(t, res.OK)

	res, err = eng.Activate(ctx, rec.ID, true)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, task.StateActive, res.State)
}

func TestDependencyGating(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	require.NoError(t, registry.Register("import", finishJob, ""))
	ctx := context.Background()

	recA, _, err := eng.CreateTask(ctx, "import", "page:a", "任务A", &task.Data{MaxRecords: 1})
	require.NoError(t, err)
	recB, _, err := eng.CreateTask(ctx, "import", "page:b", "任务B", &task.Data{MaxRecords: 1})
	require.NoError(t, err)
	require.NoError(t, eng.AddDependency(ctx, recB.ID, recA.ID))

	// 前置任务未完成，激活失败
	res, err := eng.Activate(ctx, recB.ID, false)
	require.NoError(t, err)
	assert.False(t, res.OK)

	fresh, err := eng.GetTask(ctx, recB.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateWaiting, fresh.State)

	// 完成前置任务后激活成功
	_, err = eng.Activate(ctx, recA.ID, false)
	require.NoError(t, err)
	outcome, err := eng.Execute(ctx, recA.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	require.Equal(t, engine.RunFinished, outcome.Status)

	res, err = eng.Activate(ctx, recB.ID, false)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestDependencyOnTrashedTaskIsSatisfied(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	require.NoError(t, registry.Register("import", finishJob, ""))
	ctx := context.Background()

	recA, _, err := eng.CreateTask(ctx, "import", "page:a", "任务A", nil)
	require.NoError(t, err)
	recB, _, err := eng.CreateTask(ctx, "import", "page:b", "任务B", nil)
	require.NoError(t, err)
	require.NoError(t, eng.AddDependency(ctx, recB.ID, recA.ID))

	// 软删除的前置任务视为满足
	_, err = eng.Trash(ctx, recA.ID)
	require.NoError(t, err)

	res, err := eng.Activate(ctx, recB.ID, false)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestCascadeActivatesSuccessor(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	require.NoError(t, registry.Register("import", finishJob, ""))
	ctx := context.Background()

	recA, _, err := eng.CreateTask(ctx, "import", "page:a", "任务A", &task.Data{MaxRecords: 1})
	require.NoError(t, err)
	recB, _, err := eng.CreateTask(ctx, "import", "page:b", "任务B", &task.Data{MaxRecords: 1})
	require.NoError(t, err)
	require.NoError(t, eng.AddSuccessor(ctx, recA.ID, recB.ID))

	_, err = eng.Activate(ctx, recA.ID, false)
	require.NoError(t, err)
	outcome, err := eng.Execute(ctx, recA.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	require.Equal(t, engine.RunFinished, outcome.Status)

	// 后续任务无需外部激活即转为Active
	fresh, err := eng.GetTask(ctx, recB.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateActive, fresh.State)
}

func TestProgressMonotonicAcrossRounds(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	ctx := context.Background()

	round := 0
	require.NoError(t, registry.Register("batch", func(tc *task.Context) error {
		if round == 0 {
			tc.Data.RecordsProcessed += 10
		} else {
			tc.Data.RecordsProcessed += 15
		}
		round++
		return tc.SaveProgress(false, false)
	}, ""))

	rec, _, err := eng.CreateTask(ctx, "batch", "page:1", "分批任务", &task.Data{MaxRecords: 100})
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)

	outcome, err := eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	assert.Equal(t, engine.RunProgressed, outcome.Status)
	fresh, _ := eng.GetTask(ctx, rec.ID)
	assert.Equal(t, 10.0, fresh.Progress)
	assert.Equal(t, task.StateActive, fresh.State)

	_, err = eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	fresh, _ = eng.GetTask(ctx, rec.ID)
	assert.Equal(t, 25.0, fresh.Progress)
}

func TestPastDeadlineNeverInvokesWorkFunction(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	ctx := context.Background()

	invoked := false
	require.NoError(t, registry.Register("slow", func(tc *task.Context) error {
		invoked = true
		return nil
	}, ""))

	rec, _, err := eng.CreateTask(ctx, "slow", "page:1", "慢任务", nil)
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)

	outcome, err := eng.Execute(ctx, rec.ID, engine.RunParams{
		Invoker:  "test",
		Deadline: time.Now().Add(-time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.RunRejected, outcome.Status)
	assert.ErrorIs(t, outcome.Reason, engine.ErrBudgetExhausted)
	assert.False(t, invoked)

	// 状态保持Active，running为false
	fresh, _ := eng.GetTask(ctx, rec.ID)
	assert.Equal(t, task.StateActive, fresh.State)
	assert.False(t, fresh.Running)
}

func TestExecuteRejectsNonActive(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	require.NoError(t, registry.Register("import", finishJob, ""))
	ctx := context.Background()

	rec, _, err := eng.CreateTask(ctx, "import", "page:1", "t", nil)
	require.NoError(t, err)

	outcome, err := eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	assert.Equal(t, engine.RunRejected, outcome.Status)
	assert.ErrorIs(t, outcome.Reason, engine.ErrNotActive)
}

func TestExecuteRejectsAlreadyRunning(t *testing.T) {
	eng, registry, repo := newTestEngine(t)
	require.NoError(t, registry.Register("import", finishJob, ""))
	ctx := context.Background()

	rec, _, err := eng.CreateTask(ctx, "import", "page:1", "t", nil)
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)
	require.NoError(t, repo.SaveRunning(ctx, rec.ID, true))

	outcome, err := eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	assert.Equal(t, engine.RunRejected, outcome.Status)
	assert.ErrorIs(t, outcome.Reason, engine.ErrAlreadyRunning)
}

func TestWorkFunctionErrorMeansFailed(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, registry.Register("broken", func(tc *task.Context) error {
		return assert.AnError
	}, ""))

	rec, _, err := eng.CreateTask(ctx, "broken", "page:1", "坏任务", nil)
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)

	outcome, err := eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	assert.Equal(t, engine.RunFailed, outcome.Status)

	fresh, _ := eng.GetTask(ctx, rec.ID)
	assert.Equal(t, task.StateFailed, fresh.State)
	assert.False(t, fresh.Running)
	assert.Contains(t, fresh.Log, "ERROR: ")
}

func TestPanicConvertsToFailed(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, registry.Register("panics", func(tc *task.Context) error {
		panic("boom")
	}, ""))

	rec, _, err := eng.CreateTask(ctx, "panics", "page:1", "崩溃任务", nil)
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)

	// panic不穿透引擎边界
	outcome, err := eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	assert.Equal(t, engine.RunFailed, outcome.Status)

	fresh, _ := eng.GetTask(ctx, rec.ID)
	assert.Equal(t, task.StateFailed, fresh.State)
	assert.False(t, fresh.Running)
}

func TestExternalSuspendObservedAtCheckpoint(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, registry.Register("pausable", func(tc *task.Context) error {
		tc.Data.RecordsProcessed += 10
		if err := tc.SaveProgress(true, true); err != nil {
			return err
		}
		// 模拟并发的管理请求
		if _, err := eng.Suspend(context.Background(), tc.TaskID); err != nil {
			return err
		}
		tc.Data.RecordsProcessed += 10
		return tc.SaveProgress(true, true)
	}, ""))

	rec, _, err := eng.CreateTask(ctx, "pausable", "page:1", "可挂起任务", &task.Data{MaxRecords: 100})
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)

	outcome, err := eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	assert.Equal(t, engine.RunInterrupted, outcome.Status)

	// 外部设置的状态被保留（有进度时挂起为Suspended），进度已保存
	fresh, _ := eng.GetTask(ctx, rec.ID)
	assert.Equal(t, task.StateSuspended, fresh.State)
	assert.False(t, fresh.Running)
	assert.Equal(t, 20.0, fresh.Progress)
}

func TestRunningNeverCoexistsWithTerminalState(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, registry.Register("import", finishJob, ""))
	require.NoError(t, registry.Register("broken", func(tc *task.Context) error {
		return assert.AnError
	}, ""))

	for _, tt := range []struct {
		handler string
		subject string
	}{
		{"import", "page:ok"},
		{"broken", "page:bad"},
	} {
		rec, _, err := eng.CreateTask(ctx, tt.handler, tt.subject, tt.subject, &task.Data{MaxRecords: 1})
		require.NoError(t, err)
		_, err = eng.Activate(ctx, rec.ID, false)
		require.NoError(t, err)
		_, err = eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
		require.NoError(t, err)

		fresh, err := eng.GetTask(ctx, rec.ID)
		require.NoError(t, err)
		if fresh.State.Terminal() {
			assert.False(t, fresh.Running, "终态任务的running必须为false: %s", tt.subject)
		}
	}
}

func TestResetClearsCursorAndLog(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, registry.Register("batch", func(tc *task.Context) error {
		tc.Data.RecordsProcessed += 10
		tc.Message("处理了10条")
		return tc.SaveProgress(false, false)
	}, ""))

	rec, _, err := eng.CreateTask(ctx, "batch", "page:1", "t", &task.Data{MaxRecords: 100, Milestone: 50})
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)
	_, err = eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)

	res, err := eng.Reset(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, res.OK)

	fresh, _ := eng.GetTask(ctx, rec.ID)
	assert.Equal(t, task.StateWaiting, fresh.State)
	assert.Equal(t, int64(0), fresh.Data.RecordsProcessed)
	assert.Equal(t, int64(0), fresh.Data.Milestone)
	assert.Equal(t, 0.0, fresh.Progress)
	assert.Empty(t, fresh.Log)
}

func TestKillResetsProgressAndLog(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	require.NoError(t, registry.Register("import", finishJob, ""))
	ctx := context.Background()

	rec, _, err := eng.CreateTask(ctx, "import", "page:1", "t", &task.Data{MaxRecords: 10})
	require.NoError(t, err)

	res, err := eng.Kill(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, res.OK)

	fresh, _ := eng.GetTask(ctx, rec.ID)
	assert.Equal(t, task.StateKilled, fresh.State)
	assert.Equal(t, 0.0, fresh.Progress)
	assert.Empty(t, fresh.Log)
	assert.False(t, fresh.Running)

	// 终态任务不能再次终止
	res, err = eng.Kill(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, res.OK)
}

func TestSuspendWithoutProgressGoesWaiting(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	require.NoError(t, registry.Register("import", finishJob, ""))
	ctx := context.Background()

	rec, _, err := eng.CreateTask(ctx, "import", "page:1", "t", nil)
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)

	res, err := eng.Suspend(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, task.StateWaiting, res.State)
}

func TestUnresolvableHandlerFailsPermanently(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	require.NoError(t, registry.Register("temp", finishJob, ""))
	ctx := context.Background()

	rec, _, err := eng.CreateTask(ctx, "temp", "page:1", "t", nil)
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)
	require.NoError(t, registry.Unregister("temp"))

	outcome, err := eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	assert.Equal(t, engine.RunFailed, outcome.Status)

	fresh, _ := eng.GetTask(ctx, rec.ID)
	assert.Equal(t, task.StateFailed, fresh.State)
	assert.Contains(t, fresh.Log, "执行目标无法解析")
}

func TestTimeoutCommitsLastCheckpointSnapshot(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	ctx := context.Background()

	// 不让出执行权的工作函数：检查点之后继续修改负载直到截止时间
	require.NoError(t, registry.Register("runaway", func(tc *task.Context) error {
		tc.Data.RecordsProcessed = 10
		if err := tc.SaveProgress(false, false); err != nil {
			return err
		}
		for tc.Err() == nil {
			tc.Data.RecordsProcessed++
			tc.Data.SetExtra("cursor", tc.Data.RecordsProcessed)
		}
		return tc.Err()
	}, ""))

	rec, _, err := eng.CreateTask(ctx, "runaway", "page:1", "失控任务", &task.Data{MaxRecords: 100})
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)

	outcome, err := eng.Execute(ctx, rec.ID, engine.RunParams{
		Invoker:  "test",
		Deadline: time.Now().Add(1500 * time.Millisecond),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.RunPreempted, outcome.Status)
	assert.Equal(t, task.StateActive, outcome.State)

	// 落库的是最近一次检查点的快照，检查点之后的修改不会被提交
	fresh, err := eng.GetTask(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateActive, fresh.State)
	assert.False(t, fresh.Running)
	assert.Equal(t, int64(10), fresh.Data.RecordsProcessed)
	assert.Equal(t, 10.0, fresh.Progress)
	_, found := fresh.Data.GetExtra("cursor")
	assert.False(t, found)
}

func TestMilestoneGatedCheckpoint(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	ctx := context.Background()

	var gates []bool
	require.NoError(t, registry.Register("milestones", func(tc *task.Context) error {
		tc.Data.RecordsProcessed += 25
		saved, err := tc.SaveProgressAtMilestone(false, false)
		if err != nil {
			return err
		}
		gates = append(gates, saved)

		tc.Data.RecordsProcessed += 25
		saved, err = tc.SaveProgressAtMilestone(false, false)
		if err != nil {
			return err
		}
		gates = append(gates, saved)
		if saved {
			tc.Data.Milestone = 100
		}
		return nil
	}, ""))

	rec, _, err := eng.CreateTask(ctx, "milestones", "page:1", "里程碑任务", &task.Data{MaxRecords: 100, Milestone: 50})
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)

	outcome, err := eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	assert.Equal(t, engine.RunProgressed, outcome.Status)

	// 游标在25时低于里程碑被跳过，到达50时真正执行检查点
	assert.Equal(t, []bool{false, true}, gates)

	fresh, _ := eng.GetTask(ctx, rec.ID)
	assert.Equal(t, 50.0, fresh.Progress)
	assert.Equal(t, int64(100), fresh.Data.Milestone)
}

func TestIntervalGatedCheckpoint(t *testing.T) {
	eng, registry, _ := newTestEngine(t)
	ctx := context.Background()

	var gates []bool
	require.NoError(t, registry.Register("batched", func(tc *task.Context) error {
		tc.Data.RecordsProcessed += 10
		// 距上次持久化不足间隔，跳过
		saved, err := tc.SaveProgressEvery(time.Hour, false, false)
		if err != nil {
			return err
		}
		gates = append(gates, saved)

		time.Sleep(10 * time.Millisecond)
		saved, err = tc.SaveProgressEvery(time.Millisecond, false, false)
		if err != nil {
			return err
		}
		gates = append(gates, saved)
		return nil
	}, ""))

	rec, _, err := eng.CreateTask(ctx, "batched", "page:1", "分批任务", &task.Data{MaxRecords: 100})
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)

	outcome, err := eng.Execute(ctx, rec.ID, engine.RunParams{Invoker: "test"})
	require.NoError(t, err)
	assert.Equal(t, engine.RunProgressed, outcome.Status)
	assert.Equal(t, []bool{false, true}, gates)

	fresh, _ := eng.GetTask(ctx, rec.ID)
	assert.Equal(t, 10.0, fresh.Progress)
}

func TestGetLogSummary(t *testing.T) {
	rec := &storage.TaskRecord{
		Progress: 42.5,
		Log:      "开始\nERROR: 坏记录\nWARNING: 跳过\nERROR: 又一条\n",
	}
	assert.Equal(t, "42.50% 2 error(s) 1 warning(s)", engine.GetLogSummary(rec))

	rec = &storage.TaskRecord{Progress: -1}
	assert.Equal(t, "?%", engine.GetLogSummary(rec))
}

func TestEqualBySignature(t *testing.T) {
	a := &storage.TaskRecord{Signature: "abc"}
	b := &storage.TaskRecord{Signature: "abc"}
	c := &storage.TaskRecord{Signature: "xyz"}
	assert.True(t, engine.Equal(a, b))
	assert.False(t, engine.Equal(a, c))
	assert.False(t, engine.Equal(a, nil))
}
