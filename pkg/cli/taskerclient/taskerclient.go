package taskerclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mtwebit/tasker/pkg/api/dto"
)

// Client Tasker HTTP API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建Tasker客户端
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListTasks 列出任务（state为空表示不过滤）
func (c *Client) ListTasks(state string) ([]dto.TaskResponse, error) {
	path := "/api/v1/tasks"
	if state != "" {
		params := url.Values{}
		params.Set("state", state)
		path += "?" + params.Encode()
	}

	var resp dto.APIResponse[[]dto.TaskResponse]
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return resp.Data, nil
}

// GetTask 查询任务详情
func (c *Client) GetTask(id string) (*dto.TaskResponse, error) {
	var resp dto.APIResponse[dto.TaskResponse]
	if err := c.get("/api/v1/tasks/"+id, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// CreateTask 创建任务
func (c *Client) CreateTask(req dto.CreateTaskRequest) (*dto.CreateTaskResponse, error) {
	var resp dto.APIResponse[dto.CreateTaskResponse]
	if err := c.post("/api/v1/tasks", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// Activate 激活任务
func (c *Client) Activate(id string, force bool) (*dto.CommandResponse, error) {
	return c.command("/api/v1/tasks/"+id+"/activate", dto.ActivateRequest{Force: force})
}

// Suspend 挂起任务
func (c *Client) Suspend(id string) (*dto.CommandResponse, error) {
	return c.command("/api/v1/tasks/"+id+"/suspend", nil)
}

// Kill 终止任务
func (c *Client) Kill(id string) (*dto.CommandResponse, error) {
	return c.command("/api/v1/tasks/"+id+"/kill", nil)
}

// Reset 重置任务
func (c *Client) Reset(id string) (*dto.CommandResponse, error) {
	return c.command("/api/v1/tasks/"+id+"/reset", nil)
}

// Restart 重启任务（重置后强制激活）
func (c *Client) Restart(id string) (*dto.CommandResponse, error) {
	return c.command("/api/v1/tasks/"+id+"/restart", nil)
}

// Trash 软删除任务
func (c *Client) Trash(id string) (*dto.CommandResponse, error) {
	var resp dto.APIResponse[dto.CommandResponse]
	if err := c.delete("/api/v1/tasks/"+id, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// Run 按需执行一轮任务
func (c *Client) Run(id string) (*dto.RunResponse, error) {
	var resp dto.APIResponse[dto.RunResponse]
	if err := c.post("/api/v1/tasks/"+id+"/run", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// AddDependency 追加前置任务
func (c *Client) AddDependency(id, dependsOn string) error {
	var resp dto.APIResponse[map[string]string]
	if err := c.post("/api/v1/tasks/"+id+"/dependencies", dto.AddRelationRequest{TaskID: dependsOn}, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return fmt.Errorf("%s", resp.Message)
	}
	return nil
}

// AddSuccessor 追加后续任务
func (c *Client) AddSuccessor(id, successor string) error {
	var resp dto.APIResponse[map[string]string]
	if err := c.post("/api/v1/tasks/"+id+"/successors", dto.AddRelationRequest{TaskID: successor}, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return fmt.Errorf("%s", resp.Message)
	}
	return nil
}

// ListHandlers 列出已注册的工作函数
func (c *Client) ListHandlers() ([]dto.HandlerInfo, error) {
	var resp dto.APIResponse[[]dto.HandlerInfo]
	if err := c.get("/api/v1/handlers", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return resp.Data, nil
}

// Health 健康检查
func (c *Client) Health() (*dto.HealthResponse, error) {
	var resp dto.APIResponse[dto.HealthResponse]
	if err := c.get("/health", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

func (c *Client) command(path string, body interface{}) (*dto.CommandResponse, error) {
	var resp dto.APIResponse[dto.CommandResponse]
	if err := c.post(path, body, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", reqBody)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) delete(path string, result interface{}) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) parseResponse(resp *http.Response, result interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("解析响应失败: %w, body: %s", err, string(body))
	}
	return nil
}
