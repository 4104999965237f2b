package task

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
)

// Data 任务负载（对外导出）
// 持久化为JSON文本，随任务执行不断更新；创建时的快照用于计算签名
type Data struct {
	Handler          string         `json:"handler"`                // 已注册的工作函数名称
	Subject          string         `json:"subject_ref"`            // 任务操作的业务对象标识
	RecordsProcessed int64          `json:"records_processed"`      // 已处理记录数（任务自己维护的游标）
	MaxRecords       int64          `json:"max_records"`            // 总记录数（0表示未知）
	Done             bool           `json:"done"`                   // 任务是否已全部完成
	Milestone        int64          `json:"milestone,omitempty"`    // 检查点里程碑阈值（0表示未设置）
	Dependencies     []string       `json:"dependencies,omitempty"` // 前置任务ID列表
	Successors       []string       `json:"successors,omitempty"`   // 后续任务ID列表
	Extra            map[string]any `json:"extra,omitempty"`        // 任务自定义参数
}

// Encode 序列化任务负载
func (d *Data) Encode() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("序列化任务负载失败: %w", err)
	}
	return string(b), nil
}

// DecodeData 反序列化任务负载
func DecodeData(s string) (*Data, error) {
	var d Data
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, fmt.Errorf("反序列化任务负载失败: %w", err)
	}
	return &d, nil
}

// Signature 计算负载的确定性指纹
// 用于重复任务检测，创建后不再变化（负载本身会变）
func (d *Data) Signature() (string, error) {
	encoded, err := d.Encode()
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(encoded))
	return hex.EncodeToString(sum[:]), nil
}

// Progress 根据游标推算进度百分比（保留两位小数）
// MaxRecords为0时无法推算，返回-1表示进度不确定
func (d *Data) Progress() float64 {
	if d.MaxRecords <= 0 {
		return -1
	}
	return math.Round(100*100*float64(d.RecordsProcessed)/float64(d.MaxRecords)) / 100
}

// MilestoneReached 是否到达里程碑
func (d *Data) MilestoneReached() bool {
	return d.Milestone > 0 && d.RecordsProcessed >= d.Milestone
}

// AddDependency 追加一个前置任务
func (d *Data) AddDependency(id string) {
	d.Dependencies = append(d.Dependencies, id)
}

// AddSuccessor 追加一个后续任务
func (d *Data) AddSuccessor(id string) {
	d.Successors = append(d.Successors, id)
}

// GetExtra 获取自定义参数
func (d *Data) GetExtra(key string) (any, bool) {
	if d.Extra == nil {
		return nil, false
	}
	v, ok := d.Extra[key]
	return v, ok
}

// GetExtraString 获取字符串类型的自定义参数
func (d *Data) GetExtraString(key string) string {
	v, ok := d.GetExtra(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// SetExtra 设置自定义参数
func (d *Data) SetExtra(key string, value any) {
	if d.Extra == nil {
		d.Extra = make(map[string]any)
	}
	d.Extra[key] = value
}
