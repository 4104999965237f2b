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
)

func TestEventBusPublishSubscribe(t *testing.T) {
	bus := engine.NewEventBus(false)
	t.Cleanup(func() { bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	msgs, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	sent := engine.StateChangedEvent{
		TaskID:    "task-1",
		Title:     "导入页面",
		From:      task.StateWaiting,
		To:        task.StateActive,
		Invoker:   "activate",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, bus.PublishStateChanged(sent))

	select {
	case msg := <-msgs:
		ev, err := engine.DecodeStateChanged(msg)
		require.NoError(t, err)
		msg.Ack()
		assert.Equal(t, "task-1", ev.TaskID)
		assert.Equal(t, task.StateWaiting, ev.From)
		assert.Equal(t, task.StateActive, ev.To)
		assert.Equal(t, "activate", ev.Invoker)
		assert.Equal(t, "task-1", msg.Metadata.Get("task_id"))
		assert.Equal(t, "active", msg.Metadata.Get("to_state"))
	case <-time.After(3 * time.Second):
		t.Fatal("未收到状态变更事件")
	}
}

func TestEngineLifecyclePublishesEvents(t *testing.T) {
	repo, err := istorage.NewTaskRepository("sqlite", filepath.Join(t.TempDir(), "tasker_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	bus := engine.NewEventBus(false)
	t.Cleanup(func() { bus.Close() })
	registry := task.NewHandlerRegistry()
	eng := engine.NewEngine(repo, registry, bus, false)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	msgs, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, registry.Register("import", finishJob, ""))
	rec, _, err := eng.CreateTask(ctx, "import", "page:1", "t", nil)
	require.NoError(t, err)
	_, err = eng.Activate(ctx, rec.ID, false)
	require.NoError(t, err)

	// 激活产生 waiting→active 事件（创建事件可能在前）
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-msgs:
			ev, err := engine.DecodeStateChanged(msg)
			require.NoError(t, err)
			msg.Ack()
			if ev.To == task.StateActive {
				assert.Equal(t, rec.ID, ev.TaskID)
				return
			}
		case <-deadline:
			t.Fatal("未收到激活事件")
		}
	}
}
