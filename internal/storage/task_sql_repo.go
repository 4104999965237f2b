package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mtwebit/tasker/pkg/core/task"
	"github.com/mtwebit/tasker/pkg/storage"
	"github.com/mtwebit/tasker/pkg/storage/dao"
)

// taskSQLRepo 基于sqlx的任务存储实现（内部实现）
// 所有方言共用同一套命名参数查询，建表与类型差异由Dialect封装
type taskSQLRepo struct {
	db      *sqlx.DB
	dialect storage.Dialect
}

// NewTaskSQLRepo 创建任务存储实例（建表并应用连接配置）
func NewTaskSQLRepo(db *sqlx.DB, dialect storage.Dialect) (storage.TaskRepository, error) {
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("配置数据库连接失败: %w", err)
		}
	}
	for _, stmt := range splitStatements(dialect.CreateTaskTableSQL()) {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("初始化任务表失败: %w", err)
		}
	}
	return &taskSQLRepo{db: db, dialect: dialect}, nil
}

// splitStatements 拆分DDL中的多条语句（驱动不支持一次执行多条）
func splitStatements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Create 创建任务记录并分配ID
func (r *taskSQLRepo) Create(ctx context.Context, rec *storage.TaskRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreateTime.IsZero() {
		rec.CreateTime = time.Now().UTC()
	}
	d, err := dao.FromRecord(rec)
	if err != nil {
		return "", err
	}
	query := `INSERT INTO tasker_task
		(id, title, subject, task_data, signature, task_state, task_running, progress, log_messages, trashed, create_time)
		VALUES (:id, :title, :subject, :task_data, :signature, :task_state, :task_running, :progress, :log_messages, :trashed, :create_time)`
	if _, err := r.db.NamedExecContext(ctx, query, d); err != nil {
		return "", fmt.Errorf("创建任务记录失败: %w", err)
	}
	return rec.ID, nil
}

// GetByID 根据ID查询任务记录
func (r *taskSQLRepo) GetByID(ctx context.Context, id string) (*storage.TaskRecord, error) {
	var d dao.TaskDAO
	query := r.db.Rebind(`SELECT * FROM tasker_task WHERE id = ?`)
	err := r.db.GetContext(ctx, &d, query, id)
	if err == sql.ErrNoRows {
		return nil, nil // 不存在时返回nil而不是错误
	}
	if err != nil {
		return nil, fmt.Errorf("查询任务记录失败: %w", err)
	}
	return d.ToRecord()
}

// buildWhere 根据过滤条件拼接WHERE子句和参数
func buildWhere(f storage.Filter) (string, map[string]any) {
	clauses := []string{"1 = 1"}
	args := map[string]any{}
	if !f.IncludeTrashed {
		clauses = append(clauses, "trashed = :no_trash")
		args["no_trash"] = false
	}
	if f.State != nil {
		clauses = append(clauses, "task_state = :state")
		args["state"] = int(*f.State)
	}
	if f.Running != nil {
		clauses = append(clauses, "task_running = :running")
		args["running"] = *f.Running
	}
	if f.Subject != "" {
		clauses = append(clauses, "subject = :subject")
		args["subject"] = f.Subject
	}
	if f.Signature != "" {
		clauses = append(clauses, "signature = :signature")
		args["signature"] = f.Signature
	}
	if len(f.ExcludeIDs) > 0 {
		clauses = append(clauses, "id NOT IN (:exclude_ids)")
		args["exclude_ids"] = f.ExcludeIDs
	}
	return strings.Join(clauses, " AND "), args
}

// expand 展开命名参数与IN子句并适配当前驱动的占位符
func (r *taskSQLRepo) expand(query string, args map[string]any) (string, []any, error) {
	q, a, err := sqlx.Named(query, args)
	if err != nil {
		return "", nil, err
	}
	q, a, err = sqlx.In(q, a...)
	if err != nil {
		return "", nil, err
	}
	return r.db.Rebind(q), a, nil
}

// Find 条件查询（按创建时间排序）
func (r *taskSQLRepo) Find(ctx context.Context, f storage.Filter) ([]*storage.TaskRecord, error) {
	where, args := buildWhere(f)
	query, a, err := r.expand(`SELECT * FROM tasker_task WHERE `+where+` ORDER BY create_time ASC`, args)
	if err != nil {
		return nil, fmt.Errorf("构造任务查询失败: %w", err)
	}
	var daos []dao.TaskDAO
	if err := r.db.SelectContext(ctx, &daos, query, a...); err != nil {
		return nil, fmt.Errorf("查询任务列表失败: %w", err)
	}
	recs := make([]*storage.TaskRecord, 0, len(daos))
	for i := range daos {
		rec, err := daos[i].ToRecord()
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// FindOne 条件查询单条记录
func (r *taskSQLRepo) FindOne(ctx context.Context, f storage.Filter) (*storage.TaskRecord, error) {
	where, args := buildWhere(f)
	query, a, err := r.expand(`SELECT * FROM tasker_task WHERE `+where+` ORDER BY create_time ASC LIMIT 1`, args)
	if err != nil {
		return nil, fmt.Errorf("构造任务查询失败: %w", err)
	}
	var d dao.TaskDAO
	err = r.db.GetContext(ctx, &d, query, a...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询任务记录失败: %w", err)
	}
	return d.ToRecord()
}

// Count 条件计数
func (r *taskSQLRepo) Count(ctx context.Context, f storage.Filter) (int, error) {
	where, args := buildWhere(f)
	query, a, err := r.expand(`SELECT COUNT(*) FROM tasker_task WHERE `+where, args)
	if err != nil {
		return 0, fmt.Errorf("构造计数查询失败: %w", err)
	}
	var n int
	if err := r.db.GetContext(ctx, &n, query, a...); err != nil {
		return 0, fmt.Errorf("任务计数失败: %w", err)
	}
	return n, nil
}

// Save 全量保存任务记录
func (r *taskSQLRepo) Save(ctx context.Context, rec *storage.TaskRecord) error {
	d, err := dao.FromRecord(rec)
	if err != nil {
		return err
	}
	query := `UPDATE tasker_task SET
		title = :title, subject = :subject, task_data = :task_data,
		task_state = :task_state, task_running = :task_running,
		progress = :progress, log_messages = :log_messages, trashed = :trashed
		WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, d)
	if err != nil {
		return fmt.Errorf("保存任务记录失败: %w", err)
	}
	return requireRow(res, rec.ID)
}

// SaveState 仅更新状态
func (r *taskSQLRepo) SaveState(ctx context.Context, id string, s task.State) error {
	query := r.db.Rebind(`UPDATE tasker_task SET task_state = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, int(s), id)
	if err != nil {
		return fmt.Errorf("更新任务状态失败: %w", err)
	}
	return requireRow(res, id)
}

// SaveRunning 仅更新运行标志
func (r *taskSQLRepo) SaveRunning(ctx context.Context, id string, running bool) error {
	query := r.db.Rebind(`UPDATE tasker_task SET task_running = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, running, id)
	if err != nil {
		return fmt.Errorf("更新运行标志失败: %w", err)
	}
	return requireRow(res, id)
}

// ClaimRunning 条件更新运行标志（未占用时置为占用）
// 条件更新保证同一任务同一时刻最多只有一个执行实例
func (r *taskSQLRepo) ClaimRunning(ctx context.Context, id string) (bool, error) {
	query := r.db.Rebind(`UPDATE tasker_task SET task_running = ? WHERE id = ? AND task_running = ?`)
	res, err := r.db.ExecContext(ctx, query, true, id, false)
	if err != nil {
		return false, fmt.Errorf("占用任务失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("读取占用结果失败: %w", err)
	}
	return n == 1, nil
}

// SaveProgress 保存进度、负载和日志（检查点写入）
func (r *taskSQLRepo) SaveProgress(ctx context.Context, rec *storage.TaskRecord) error {
	d, err := dao.FromRecord(rec)
	if err != nil {
		return err
	}
	query := `UPDATE tasker_task SET
		task_data = :task_data, progress = :progress, log_messages = :log_messages
		WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, d)
	if err != nil {
		return fmt.Errorf("保存任务进度失败: %w", err)
	}
	return requireRow(res, rec.ID)
}

// CommitResult 在单个事务中提交一轮执行的最终结果
func (r *taskSQLRepo) CommitResult(ctx context.Context, rec *storage.TaskRecord) error {
	d, err := dao.FromRecord(rec)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE tasker_task SET
		task_data = :task_data, task_state = :task_state, task_running = :task_running,
		progress = :progress, log_messages = :log_messages
		WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, query, d)
	if err != nil {
		return fmt.Errorf("提交执行结果失败: %w", err)
	}
	if err := requireRow(res, rec.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// Trash 软删除任务记录
func (r *taskSQLRepo) Trash(ctx context.Context, id string) error {
	query := r.db.Rebind(`UPDATE tasker_task SET trashed = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, true, id)
	if err != nil {
		return fmt.Errorf("软删除任务失败: %w", err)
	}
	return requireRow(res, id)
}

// Ping 存活探测
func (r *taskSQLRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close 关闭底层连接
func (r *taskSQLRepo) Close() error {
	return r.db.Close()
}

// requireRow 校验更新确实命中了目标记录
func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("读取更新结果失败: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("任务记录不存在: %s", id)
	}
	return nil
}
