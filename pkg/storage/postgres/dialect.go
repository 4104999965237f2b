package postgres

import "fmt"

// PostgresDialect PostgreSQL方言实现（对外导出）
type PostgresDialect struct{}

// NewPostgresDialect 创建PostgreSQL方言实例
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

// Name 返回方言名称
func (d *PostgresDialect) Name() string {
	return "postgres"
}

// CreateTaskTableSQL 返回任务表DDL
func (d *PostgresDialect) CreateTaskTableSQL() string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS tasker_task (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		subject TEXT NOT NULL,
		task_data TEXT NOT NULL,
		signature TEXT NOT NULL,
		task_state INTEGER NOT NULL DEFAULT 2,
		task_running %s NOT NULL DEFAULT FALSE,
		progress %s NOT NULL DEFAULT 0,
		log_messages TEXT NOT NULL DEFAULT '',
		trashed %s NOT NULL DEFAULT FALSE,
		create_time %s NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasker_task_state ON tasker_task(task_state);
	CREATE INDEX IF NOT EXISTS idx_tasker_task_running ON tasker_task(task_running);
	CREATE INDEX IF NOT EXISTS idx_tasker_task_signature ON tasker_task(subject, signature);
	`, d.BooleanType(), d.FloatType(), d.BooleanType(), d.TimestampType())
}

// ConfigureDB 返回连接配置语句
func (d *PostgresDialect) ConfigureDB() []string {
	return nil
}

// BooleanType 返回布尔类型
func (d *PostgresDialect) BooleanType() string {
	return "BOOLEAN"
}

// FloatType 返回浮点类型
func (d *PostgresDialect) FloatType() string {
	return "DOUBLE PRECISION"
}

// TimestampType 返回时间戳类型
func (d *PostgresDialect) TimestampType() string {
	return "TIMESTAMP"
}
