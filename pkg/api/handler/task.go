package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mtwebit/tasker/pkg/api/dto"
	"github.com/mtwebit/tasker/pkg/core/engine"
	"github.com/mtwebit/tasker/pkg/core/task"
	"github.com/mtwebit/tasker/pkg/storage"
)

// TaskHandler 任务生命周期命令处理器
type TaskHandler struct {
	engine *engine.Engine
	runCfg engine.DriverConfig // 按需执行的预算配置
}

// NewTaskHandler 创建TaskHandler
func NewTaskHandler(eng *engine.Engine, runCfg engine.DriverConfig) *TaskHandler {
	return &TaskHandler{engine: eng, runCfg: runCfg}
}

func toTaskResponse(rec *storage.TaskRecord, withLog bool) dto.TaskResponse {
	resp := dto.TaskResponse{
		TaskID:        rec.ID,
		TaskInfo:      rec.Title,
		Subject:       rec.Subject,
		Handler:       rec.Data.Handler,
		TaskState:     int(rec.State),
		TaskStateInfo: rec.State.String(),
		Running:       rec.Running,
		Progress:      rec.Progress,
		Summary:       engine.GetLogSummary(rec),
		Dependencies:  rec.Data.Dependencies,
		Successors:    rec.Data.Successors,
		CreateTime:    rec.CreateTime.Format("2006-01-02 15:04:05"),
	}
	if withLog {
		resp.Log = rec.Log
	}
	return resp
}

func toCommandResponse(id string, res *engine.CommandResult) dto.CommandResponse {
	return dto.CommandResponse{
		TaskID:        id,
		Status:        res.OK,
		Result:        res.Result,
		TaskState:     int(res.State),
		TaskStateInfo: res.State.String(),
		Notices:       res.Notices,
	}
}

// Create 创建任务
// POST /api/v1/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, "无效的请求参数: "+err.Error()))
		return
	}

	data := &task.Data{
		MaxRecords:   req.MaxRecords,
		Milestone:    req.Milestone,
		Dependencies: req.Dependencies,
		Extra:        req.Extra,
	}
	rec, created, err := h.engine.CreateTask(c.Request.Context(), req.Handler, req.Subject, req.Title, data)
	if err != nil {
		if errors.Is(err, engine.ErrHandlerNotFound) {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}

	status := http.StatusCreated
	if !created {
		// 重复请求，返回已存在的任务
		status = http.StatusOK
	}
	c.JSON(status, dto.NewSuccessResponse(dto.CreateTaskResponse{TaskID: rec.ID, Created: created}))
}

// List 列出任务
// GET /api/v1/tasks?state=active
func (h *TaskHandler) List(c *gin.Context) {
	var filter storage.Filter
	if name := c.Query("state"); name != "" {
		state, ok := task.ParseState(name)
		if !ok {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, "未知的任务状态: "+name))
			return
		}
		filter.State = &state
	}

	recs, err := h.engine.ListTasks(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}

	resp := make([]dto.TaskResponse, 0, len(recs))
	for _, rec := range recs {
		resp = append(resp, toTaskResponse(rec, false))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(resp))
}

// Get 查询任务详情
// GET /api/v1/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	rec, err := h.engine.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "任务不存在"))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toTaskResponse(rec, true)))
}

// Activate 激活任务
// POST /api/v1/tasks/:id/activate
func (h *TaskHandler) Activate(c *gin.Context) {
	var req dto.ActivateRequest
	_ = c.ShouldBindJSON(&req) // body可省略

	res, err := h.engine.Activate(c.Request.Context(), c.Param("id"), req.Force)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toCommandResponse(c.Param("id"), res)))
}

// Suspend 挂起任务
// POST /api/v1/tasks/:id/suspend
func (h *TaskHandler) Suspend(c *gin.Context) {
	res, err := h.engine.Suspend(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toCommandResponse(c.Param("id"), res)))
}

// Kill 终止任务
// POST /api/v1/tasks/:id/kill
func (h *TaskHandler) Kill(c *gin.Context) {
	res, err := h.engine.Kill(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toCommandResponse(c.Param("id"), res)))
}

// Reset 重置任务
// POST /api/v1/tasks/:id/reset
func (h *TaskHandler) Reset(c *gin.Context) {
	res, err := h.engine.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toCommandResponse(c.Param("id"), res)))
}

// Restart 重启任务：重置后强制激活
// POST /api/v1/tasks/:id/restart
func (h *TaskHandler) Restart(c *gin.Context) {
	id := c.Param("id")
	res, err := h.engine.Reset(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	if !res.OK {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(toCommandResponse(id, res)))
		return
	}
	res, err = h.engine.Activate(c.Request.Context(), id, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toCommandResponse(id, res)))
}

// Trash 软删除任务
// DELETE /api/v1/tasks/:id
func (h *TaskHandler) Trash(c *gin.Context) {
	res, err := h.engine.Trash(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toCommandResponse(c.Param("id"), res)))
}

// Run 按需执行一轮任务
// POST /api/v1/tasks/:id/run
func (h *TaskHandler) Run(c *gin.Context) {
	id := c.Param("id")
	outcome, err := h.engine.RunOnDemand(c.Request.Context(), id, "ondemand", h.runCfg)
	if err != nil {
		if errors.Is(err, engine.ErrStoreUnavailable) {
			c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}

	rec, err := h.engine.GetTask(c.Request.Context(), id)
	progress := 0.0
	if err == nil && rec != nil {
		progress = rec.Progress
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.RunResponse{
		TaskID:        id,
		Status:        outcome.Status.String(),
		Result:        outcome.Message,
		TaskState:     int(outcome.State),
		TaskStateInfo: outcome.State.String(),
		Progress:      progress,
		Notices:       outcome.Notices,
	}))
}

// AddDependency 追加前置任务
// POST /api/v1/tasks/:id/dependencies
func (h *TaskHandler) AddDependency(c *gin.Context) {
	var req dto.AddRelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, "无效的请求参数: "+err.Error()))
		return
	}
	if err := h.engine.AddDependency(c.Request.Context(), c.Param("id"), req.TaskID); err != nil {
		if errors.Is(err, engine.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{"status": "ok"}))
}

// AddSuccessor 追加后续任务
// POST /api/v1/tasks/:id/successors
func (h *TaskHandler) AddSuccessor(c *gin.Context) {
	var req dto.AddRelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, "无效的请求参数: "+err.Error()))
		return
	}
	if err := h.engine.AddSuccessor(c.Request.Context(), c.Param("id"), req.TaskID); err != nil {
		if errors.Is(err, engine.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{"status": "ok"}))
}

// Handlers 列出已注册的工作函数
// GET /api/v1/handlers
func (h *TaskHandler) Handlers(c *gin.Context) {
	names := h.engine.Registry().ListAll()
	infos := make([]dto.HandlerInfo, 0, len(names))
	for _, name := range names {
		info := dto.HandlerInfo{Name: name}
		if meta := h.engine.Registry().GetMeta(name); meta != nil {
			info.Description = meta.Description
		}
		infos = append(infos, info)
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(infos))
}
