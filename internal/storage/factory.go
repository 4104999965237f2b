package storage

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mtwebit/tasker/pkg/storage"
	"github.com/mtwebit/tasker/pkg/storage/mysql"
	"github.com/mtwebit/tasker/pkg/storage/postgres"
	pkgsqlite "github.com/mtwebit/tasker/pkg/storage/sqlite"
)

// NewTaskRepository 根据数据库类型创建任务存储（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
// dsn: 数据库连接字符串
func NewTaskRepository(dbType, dsn string) (storage.TaskRepository, error) {
	switch dbType {
	case "sqlite":
		return openWithDialect("sqlite3", dsn, pkgsqlite.NewSQLiteDialect())
	case "mysql":
		// MySQL默认的RowsAffected只统计值发生变化的行，
		// 开启clientFoundRows后按匹配行统计，更新语句的命中校验才可靠
		if !strings.Contains(dsn, "clientFoundRows") {
			if strings.Contains(dsn, "?") {
				dsn += "&clientFoundRows=true"
			} else {
				dsn += "?clientFoundRows=true"
			}
		}
		return openWithDialect("mysql", dsn, mysql.NewMySQLDialect())
	case "postgres", "postgresql":
		return openWithDialect("postgres", dsn, postgres.NewPostgresDialect())
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

func openWithDialect(driver, dsn string, dialect storage.Dialect) (storage.TaskRepository, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败(%s): %w", dialect.Name(), err)
	}
	repo, err := NewTaskSQLRepo(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}
