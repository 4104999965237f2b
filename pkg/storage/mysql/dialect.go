package mysql

import "fmt"

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// CreateTaskTableSQL 返回任务表DDL
// MySQL对TEXT列建索引需要前缀长度，signature/subject改用VARCHAR
func (d *MySQLDialect) CreateTaskTableSQL() string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS tasker_task (
		id VARCHAR(64) PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		subject VARCHAR(255) NOT NULL,
		task_data TEXT NOT NULL,
		signature VARCHAR(64) NOT NULL,
		task_state INTEGER NOT NULL DEFAULT 2,
		task_running %s NOT NULL DEFAULT 0,
		progress %s NOT NULL DEFAULT 0,
		log_messages TEXT NOT NULL,
		trashed %s NOT NULL DEFAULT 0,
		create_time %s NOT NULL,
		INDEX idx_tasker_task_state (task_state),
		INDEX idx_tasker_task_running (task_running),
		INDEX idx_tasker_task_signature (subject, signature)
	)`, d.BooleanType(), d.FloatType(), d.BooleanType(), d.TimestampType())
}

// ConfigureDB 返回连接配置语句
func (d *MySQLDialect) ConfigureDB() []string {
	return nil
}

// BooleanType 返回布尔类型
func (d *MySQLDialect) BooleanType() string {
	return "TINYINT(1)"
}

// FloatType 返回浮点类型
func (d *MySQLDialect) FloatType() string {
	return "DOUBLE"
}

// TimestampType 返回时间戳类型
func (d *MySQLDialect) TimestampType() string {
	return "DATETIME"
}
