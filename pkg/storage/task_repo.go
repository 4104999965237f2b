package storage

import (
	"context"
	"time"

	"github.com/mtwebit/tasker/pkg/core/task"
)

// TaskRecord 持久化的任务记录（对外导出）
// 引擎在一轮执行期间只持有它的临时句柄，字段变更必须通过生命周期操作落库
type TaskRecord struct {
	ID         string     // 任务ID（存储层创建时分配）
	Title      string     // 人类可读标题
	Subject    string     // 任务操作的业务对象标识（用于重复检测的范围）
	Data       *task.Data // 任务负载
	Signature  string     // 创建时负载的指纹，创建后不变
	State      task.State // 生命周期状态
	Running    bool       // 是否有执行引擎实例正在执行该任务
	Progress   float64    // 进度百分比（0-100，两位小数），仅作展示
	Log        string     // 累积的日志文本（追加写，reset时清空）
	Trashed    bool       // 软删除标记，默认查询不可见
	CreateTime time.Time  // 创建时间
}

// Filter 任务查询过滤条件（对外导出）
type Filter struct {
	State          *task.State // 按状态过滤
	Running        *bool       // 按运行标志过滤
	Subject        string      // 按业务对象过滤
	Signature      string      // 按签名过滤（重复检测）
	ExcludeIDs     []string    // 排除的任务ID（候选重试时使用）
	IncludeTrashed bool        // 是否包含已软删除的记录
}

// TaskRepository 任务存储接口（对外导出）
// 对应外部记录存储的契约：CRUD、条件查询、软删除与存活探测
type TaskRepository interface {
	// Create 创建任务记录并分配ID
	Create(ctx context.Context, rec *TaskRecord) (string, error)
	// GetByID 根据ID查询任务记录，不存在时返回(nil, nil)
	GetByID(ctx context.Context, id string) (*TaskRecord, error)
	// Find 条件查询（按创建时间排序）
	Find(ctx context.Context, f Filter) ([]*TaskRecord, error)
	// FindOne 条件查询单条记录，无匹配时返回(nil, nil)
	FindOne(ctx context.Context, f Filter) (*TaskRecord, error)
	// Count 条件计数
	Count(ctx context.Context, f Filter) (int, error)
	// Save 全量保存任务记录
	Save(ctx context.Context, rec *TaskRecord) error
	// SaveState 仅更新状态
	SaveState(ctx context.Context, id string, s task.State) error
	// SaveRunning 仅更新运行标志
	SaveRunning(ctx context.Context, id string, running bool) error
	// ClaimRunning 条件更新运行标志（running由0置1）
	// 返回false表示任务已被其他执行实例占用，这是互斥的真正保障点
	ClaimRunning(ctx context.Context, id string) (bool, error)
	// SaveProgress 保存进度、负载和日志（检查点写入）
	SaveProgress(ctx context.Context, rec *TaskRecord) error
	// CommitResult 在单个事务中提交状态+负载+日志+进度（一轮执行的最终写入）
	CommitResult(ctx context.Context, rec *TaskRecord) error
	// Trash 软删除任务记录
	Trash(ctx context.Context, id string) error
	// Ping 存活探测（引擎在持久化失败后用它判断是否中止整个调用）
	Ping(ctx context.Context) error
	// Close 关闭底层连接
	Close() error
}
