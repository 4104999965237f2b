package task

import (
	"fmt"
	"sync"
)

// JobFunc 任务工作函数类型（对外导出）
// 一次调用执行一轮工作：函数应定期调用tc.SaveProgress系列方法上报进度，
// 全部完成时设置tc.Data.Done=true后返回nil；返回非nil错误表示硬失败
type JobFunc func(tc *Context) error

// HandlerMeta 工作函数元数据
type HandlerMeta struct {
	Name        string // 函数名称（稳定标识，持久化在任务负载中）
	Description string // 函数描述
}

// HandlerRegistry 工作函数注册中心（对外导出）
// 任务负载只保存函数名称，执行时通过注册中心解析为函数实例；
// 注册时即校验，避免运行期反射解析
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]JobFunc
	metas    map[string]*HandlerMeta
}

// NewHandlerRegistry 创建工作函数注册中心
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]JobFunc),
		metas:    make(map[string]*HandlerMeta),
	}
}

// Register 注册工作函数
// name: 稳定的函数标识（不可为空，不可重复）
func (r *HandlerRegistry) Register(name string, fn JobFunc, description string) error {
	if name == "" {
		return fmt.Errorf("工作函数名称不能为空")
	}
	if fn == nil {
		return fmt.Errorf("工作函数 %s 不能为nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("工作函数 %s 已注册", name)
	}

	r.handlers[name] = fn
	r.metas[name] = &HandlerMeta{Name: name, Description: description}
	return nil
}

// Resolve 根据名称解析工作函数
// 未注册时返回nil
func (r *HandlerRegistry) Resolve(name string) JobFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// Exists 检查函数是否已注册
func (r *HandlerRegistry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[name]
	return exists
}

// Unregister 注销工作函数
func (r *HandlerRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; !exists {
		return fmt.Errorf("工作函数 %s 未注册", name)
	}
	delete(r.handlers, name)
	delete(r.metas, name)
	return nil
}

// GetMeta 获取函数元数据
func (r *HandlerRegistry) GetMeta(name string) *HandlerMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metas[name]
}

// ListAll 列出所有已注册的函数名称
func (r *HandlerRegistry) ListAll() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// HandlerDef 函数定义，用于批量注册
type HandlerDef struct {
	Name        string  // 函数名称
	Description string  // 函数描述
	Function    JobFunc // 函数实例
}

// RegisterBatch 批量注册工作函数
func (r *HandlerRegistry) RegisterBatch(defs []HandlerDef) error {
	for _, def := range defs {
		if err := r.Register(def.Name, def.Function, def.Description); err != nil {
			return fmt.Errorf("注册工作函数 %s 失败: %w", def.Name, err)
		}
	}
	return nil
}
