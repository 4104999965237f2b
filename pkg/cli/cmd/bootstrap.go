package cmd

import (
	"fmt"

	istorage "github.com/mtwebit/tasker/internal/storage"
	"github.com/mtwebit/tasker/pkg/config"
	"github.com/mtwebit/tasker/pkg/core/engine"
	"github.com/mtwebit/tasker/pkg/core/task"
)

// buildEngine 按配置构建存储、注册中心和执行引擎
func buildEngine(cfg *config.Config, withBus bool) (*engine.Engine, *engine.EventBus, error) {
	repo, err := istorage.NewTaskRepository(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化任务存储失败: %w", err)
	}

	registry := task.NewHandlerRegistry()
	if err := registry.RegisterBatch(handlerDefs); err != nil {
		repo.Close()
		return nil, nil, err
	}

	var bus *engine.EventBus
	if withBus {
		bus = engine.NewEventBus(cfg.Debug)
	}
	return engine.NewEngine(repo, registry, bus, cfg.Debug), bus, nil
}
