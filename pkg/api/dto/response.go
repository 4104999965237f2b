package dto

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// TaskResponse 任务详情
type TaskResponse struct {
	TaskID        string   `json:"taskid"`
	TaskInfo      string   `json:"taskinfo"` // 任务标题
	Subject       string   `json:"subject"`
	Handler       string   `json:"handler"`
	TaskState     int      `json:"task_state"`
	TaskStateInfo string   `json:"task_state_info"` // 状态名称
	Running       bool     `json:"running"`
	Progress      float64  `json:"progress"`
	Summary       string   `json:"summary"` // 进度与日志摘要
	Log           string   `json:"log,omitempty"`
	Dependencies  []string `json:"dependencies,omitempty"`
	Successors    []string `json:"successors,omitempty"`
	CreateTime    string   `json:"create_time"`
}

// CommandResponse 生命周期命令结果
type CommandResponse struct {
	TaskID        string   `json:"taskid"`
	Status        bool     `json:"status"` // 命令是否成功
	Result        string   `json:"result"` // 人类可读的结果描述
	TaskState     int      `json:"task_state"`
	TaskStateInfo string   `json:"task_state_info"`
	Notices       []string `json:"notices,omitempty"`
}

// RunResponse 按需执行结果
type RunResponse struct {
	TaskID        string   `json:"taskid"`
	Status        string   `json:"status"` // 执行结果分类
	Result        string   `json:"result"`
	TaskState     int      `json:"task_state"`
	TaskStateInfo string   `json:"task_state_info"`
	Progress      float64  `json:"progress"`
	Notices       []string `json:"notices,omitempty"`
}

// CreateTaskResponse 创建任务结果
type CreateTaskResponse struct {
	TaskID  string `json:"taskid"`
	Created bool   `json:"created"` // false表示命中重复检测，返回已存在的任务
}

// HandlerInfo 已注册的工作函数信息
type HandlerInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HealthResponse 健康检查结果
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}
