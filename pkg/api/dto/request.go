package dto

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	Handler      string         `json:"handler" binding:"required"`
	Subject      string         `json:"subject" binding:"required"`
	Title        string         `json:"title" binding:"required"`
	MaxRecords   int64          `json:"max_records"`
	Milestone    int64          `json:"milestone"`
	Dependencies []string       `json:"dependencies"`
	Extra        map[string]any `json:"extra"`
}

// ActivateRequest 激活请求
type ActivateRequest struct {
	Force bool `json:"force"` // 跳过前置任务检查并允许从任意状态激活
}

// AddRelationRequest 追加前置/后续任务请求
type AddRelationRequest struct {
	TaskID string `json:"task_id" binding:"required"`
}
