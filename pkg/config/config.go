package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 支持"15s"/"1m"写法的时长配置值
type Duration time.Duration

// UnmarshalYAML 解析时长字符串，纯数字按秒处理
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var secs int64
		if err := value.Decode(&secs); err != nil {
			return fmt.Errorf("无效的时长配置: %s", value.Value)
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("无效的时长配置: %s", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("无效的时长配置 %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std 转换为标准库时长
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config 服务配置（对外导出）
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	API       APIConfig       `yaml:"api"`
	Debug     bool            `yaml:"debug"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite/mysql/postgres
	DSN  string `yaml:"dsn"`
}

// SchedulerConfig 调度驱动配置
type SchedulerConfig struct {
	TimerEnabled    bool     `yaml:"timer_enabled"`     // 是否启用进程内定时驱动
	TimerInterval   Duration `yaml:"timer_interval"`    // 定时驱动触发间隔
	TimerTimeout    Duration `yaml:"timer_timeout"`     // 定时驱动单轮时间预算
	TimerMaxRunning int      `yaml:"timer_max_running"` // 定时驱动并发运行上限
	CronTimeout     Duration `yaml:"cron_timeout"`      // 系统cron驱动单轮时间预算
	CronMaxRunning  int      `yaml:"cron_max_running"`  // 系统cron驱动并发运行上限
	MemoryLimit     uint64   `yaml:"memory_limit"`      // 单轮内存预算（字节），0表示不限制
}

// APIConfig HTTP接口配置
type APIConfig struct {
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`
	Timeout Duration `yaml:"timeout"` // 按需执行的时间预算
}

// ApplyDefaults 应用默认值
func (c *Config) ApplyDefaults() {
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "tasker.db"
	}
	if c.Scheduler.TimerInterval <= 0 {
		c.Scheduler.TimerInterval = Duration(time.Minute)
	}
	if c.Scheduler.TimerTimeout <= 0 {
		c.Scheduler.TimerTimeout = Duration(15 * time.Second)
	}
	if c.Scheduler.TimerMaxRunning <= 0 {
		c.Scheduler.TimerMaxRunning = 2
	}
	if c.Scheduler.CronTimeout <= 0 {
		c.Scheduler.CronTimeout = Duration(18000 * time.Second)
	}
	if c.Scheduler.CronMaxRunning <= 0 {
		c.Scheduler.CronMaxRunning = 3
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port <= 0 {
		c.API.Port = 8080
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = Duration(15 * time.Second)
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "mysql", "postgres", "postgresql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("无效的API端口: %d", c.API.Port)
	}
	return nil
}

// Addr HTTP监听地址
func (c *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
