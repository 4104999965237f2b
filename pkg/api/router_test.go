package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	istorage "github.com/mtwebit/tasker/internal/storage"
	"github.com/mtwebit/tasker/pkg/api"
	"github.com/mtwebit/tasker/pkg/api/dto"
	"github.com/mtwebit/tasker/pkg/core/engine"
	"github.com/mtwebit/tasker/pkg/core/task"
)

func newTestRouter(t *testing.T) *gin.Engine {
	repo, err := istorage.NewTaskRepository("sqlite", filepath.Join(t.TempDir(), "tasker_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	registry := task.NewHandlerRegistry()
	require.NoError(t, registry.Register("import", func(tc *task.Context) error {
		tc.Data.RecordsProcessed = tc.Data.MaxRecords
		tc.Data.Done = true
		return nil
	}, "导入业务对象"))

	eng := engine.NewEngine(repo, registry, nil, false)
	return api.SetupRouter(eng, engine.DriverConfig{RoundTimeout: 10 * time.Second}, "test")
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) dto.APIResponse[T] {
	var resp dto.APIResponse[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func createTask(t *testing.T, router *gin.Engine, subject string) string {
	w := doJSON(t, router, http.MethodPost, "/api/v1/tasks", dto.CreateTaskRequest{
		Handler:    "import",
		Subject:    subject,
		Title:      "导入 " + subject,
		MaxRecords: 10,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode[dto.CreateTaskResponse](t, w)
	require.NotEmpty(t, resp.Data.TaskID)
	return resp.Data.TaskID
}

func TestAPICreateAndDuplicate(t *testing.T) {
	router := newTestRouter(t)

	id := createTask(t, router, "page:1")

	// 重复创建返回200与已存在的任务ID
	w := doJSON(t, router, http.MethodPost, "/api/v1/tasks", dto.CreateTaskRequest{
		Handler:    "import",
		Subject:    "page:1",
		Title:      "导入 page:1",
		MaxRecords: 10,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.CreateTaskResponse](t, w)
	assert.False(t, resp.Data.Created)
	assert.Equal(t, id, resp.Data.TaskID)
}

func TestAPICreateValidation(t *testing.T) {
	router := newTestRouter(t)

	// 缺少必填字段
	w := doJSON(t, router, http.MethodPost, "/api/v1/tasks", map[string]string{"handler": "import"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 未注册的工作函数
	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks", dto.CreateTaskRequest{
		Handler: "nope", Subject: "s", Title: "t",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIGetTask(t *testing.T) {
	router := newTestRouter(t)
	id := createTask(t, router, "page:1")

	w := doJSON(t, router, http.MethodGet, "/api/v1/tasks/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.TaskResponse](t, w)
	assert.Equal(t, id, resp.Data.TaskID)
	assert.Equal(t, "page:1", resp.Data.Subject)
	assert.Equal(t, "waiting", resp.Data.TaskStateInfo)
	assert.False(t, resp.Data.Running)

	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIListWithStateFilter(t *testing.T) {
	router := newTestRouter(t)
	id := createTask(t, router, "page:1")
	createTask(t, router, "page:2")

	w := doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+id+"/activate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks?state=active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[[]dto.TaskResponse](t, w)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, id, resp.Data[0].TaskID)

	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks?state=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPILifecycleCommands(t *testing.T) {
	router := newTestRouter(t)
	id := createTask(t, router, "page:1")

	w := doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+id+"/activate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.CommandResponse](t, w)
	assert.True(t, resp.Data.Status)
	assert.Equal(t, "active", resp.Data.TaskStateInfo)

	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+id+"/suspend", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[dto.CommandResponse](t, w)
	assert.True(t, resp.Data.Status)

	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+id+"/kill", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[dto.CommandResponse](t, w)
	assert.True(t, resp.Data.Status)
	assert.Equal(t, "killed", resp.Data.TaskStateInfo)

	// restart = reset + 强制激活
	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+id+"/restart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[dto.CommandResponse](t, w)
	assert.True(t, resp.Data.Status)
	assert.Equal(t, "active", resp.Data.TaskStateInfo)
}

func TestAPIRunTask(t *testing.T) {
	router := newTestRouter(t)
	id := createTask(t, router, "page:1")

	w := doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+id+"/activate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+id+"/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.RunResponse](t, w)
	assert.Equal(t, "finished", resp.Data.Status)
	assert.Equal(t, "finished", resp.Data.TaskStateInfo)
	assert.Equal(t, 100.0, resp.Data.Progress)
}

func TestAPIDependencies(t *testing.T) {
	router := newTestRouter(t)
	idA := createTask(t, router, "page:a")
	idB := createTask(t, router, "page:b")

	w := doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+idB+"/dependencies", dto.AddRelationRequest{TaskID: idA})
	assert.Equal(t, http.StatusOK, w.Code)

	// 前置任务不存在
	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+idB+"/dependencies", dto.AddRelationRequest{TaskID: "no-such-id"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 有未完成前置任务时激活失败
	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+idB+"/activate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.CommandResponse](t, w)
	assert.False(t, resp.Data.Status)
}

func TestAPITrash(t *testing.T) {
	router := newTestRouter(t)
	id := createTask(t, router, "page:1")

	w := doJSON(t, router, http.MethodDelete, "/api/v1/tasks/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 软删除后默认不可见
	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[[]dto.TaskResponse](t, w)
	assert.Empty(t, resp.Data)
}

func TestAPIHandlersAndHealth(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/handlers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[[]dto.HandlerInfo](t, w)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "import", resp.Data[0].Name)
	assert.Equal(t, "导入业务对象", resp.Data[0].Description)

	w = doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
