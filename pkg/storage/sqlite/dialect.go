package sqlite

import "fmt"

// SQLiteDialect SQLite方言实现（对外导出）
type SQLiteDialect struct{}

// NewSQLiteDialect 创建SQLite方言实例
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

// Name 返回方言名称
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// CreateTaskTableSQL 返回任务表DDL
func (d *SQLiteDialect) CreateTaskTableSQL() string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS tasker_task (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		subject TEXT NOT NULL,
		task_data TEXT NOT NULL,
		signature TEXT NOT NULL,
		task_state INTEGER NOT NULL DEFAULT 2,
		task_running %s NOT NULL DEFAULT 0,
		progress %s NOT NULL DEFAULT 0,
		log_messages TEXT NOT NULL DEFAULT '',
		trashed %s NOT NULL DEFAULT 0,
		create_time %s NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasker_task_state ON tasker_task(task_state);
	CREATE INDEX IF NOT EXISTS idx_tasker_task_running ON tasker_task(task_running);
	CREATE INDEX IF NOT EXISTS idx_tasker_task_signature ON tasker_task(subject, signature);
	`, d.BooleanType(), d.FloatType(), d.BooleanType(), d.TimestampType())
}

// ConfigureDB 返回连接配置语句
func (d *SQLiteDialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
}

// BooleanType 返回布尔类型
func (d *SQLiteDialect) BooleanType() string {
	return "INTEGER"
}

// FloatType 返回浮点类型
func (d *SQLiteDialect) FloatType() string {
	return "REAL"
}

// TimestampType 返回时间戳类型
func (d *SQLiteDialect) TimestampType() string {
	return "DATETIME"
}
