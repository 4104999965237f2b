package storage

// Dialect SQL方言接口（对外导出）
// 封装不同数据库的建表与类型差异，任务存储实现对所有方言共用一套查询
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// CreateTaskTableSQL 返回任务表的DDL语句
	CreateTaskTableSQL() string

	// ConfigureDB 返回连接建立后需要执行的SQL语句列表（如SQLite的PRAGMA）
	ConfigureDB() []string

	// BooleanType 返回布尔类型
	// SQLite: INTEGER，MySQL: TINYINT(1)，PostgreSQL: BOOLEAN
	BooleanType() string

	// FloatType 返回浮点类型
	// SQLite: REAL，MySQL: DOUBLE，PostgreSQL: DOUBLE PRECISION
	FloatType() string

	// TimestampType 返回时间戳类型
	// SQLite/MySQL: DATETIME，PostgreSQL: TIMESTAMP
	TimestampType() string
}
