package engine

import (
	"context"
	"log"

	"github.com/mtwebit/tasker/pkg/core/task"
	"github.com/mtwebit/tasker/pkg/storage"
)

// unmetDependencies 返回尚未满足的前置任务ID列表
// 前置任务不存在、已软删除或已完成均视为满足；其余状态阻塞激活
func (e *Engine) unmetDependencies(ctx context.Context, rec *storage.TaskRecord) ([]string, error) {
	var unmet []string
	for _, depID := range rec.Data.Dependencies {
		dep, err := e.repo.GetByID(ctx, depID)
		if err != nil {
			return nil, err
		}
		if dep == nil || dep.Trashed {
			// 前置任务已不存在，视为满足
			continue
		}
		if dep.State == task.StateFinished {
			continue
		}
		unmet = append(unmet, depID)
	}
	return unmet, nil
}

// cascadeSuccessors 任务完成后级联激活其声明的后续任务
// 非强制激活：其他前置任务未满足的后续任务会静默激活失败，保持Waiting
func (e *Engine) cascadeSuccessors(ctx context.Context, rec *storage.TaskRecord, invoker string) {
	for _, succID := range rec.Data.Successors {
		res, err := e.Activate(ctx, succID, false)
		if err != nil {
			log.Printf("❌ 级联激活后续任务失败: %s -> %s: %v", rec.ID, succID, err)
			continue
		}
		if !res.OK {
			// 后续任务自身的前置条件未满足，等待其余前置任务完成
			log.Printf("⏳ 后续任务暂不可激活: %s -> %s: %s", rec.ID, succID, res.Result)
		}
	}
}
