package task

import (
	"fmt"
	"strings"
	"sync"
)

// NoticeKind 诊断消息级别
type NoticeKind int

const (
	NoticeMessage NoticeKind = iota // 普通消息
	NoticeWarning                   // 警告
	NoticeError                     // 错误
)

// Notice 一条诊断消息
type Notice struct {
	Kind NoticeKind
	Text string
}

// Notices 显式的诊断消息收集器（对外导出）
// 替代进程级全局消息缓冲：每个操作持有自己的收集器，
// 检查点把累积的消息排入任务日志后清空
type Notices struct {
	mu   sync.Mutex
	list []Notice
}

// NewNotices 创建诊断消息收集器
func NewNotices() *Notices {
	return &Notices{}
}

// Message 记录一条普通消息
func (n *Notices) Message(format string, args ...any) {
	n.append(Notice{Kind: NoticeMessage, Text: fmt.Sprintf(format, args...)})
}

// Warning 记录一条警告
func (n *Notices) Warning(format string, args ...any) {
	n.append(Notice{Kind: NoticeWarning, Text: "WARNING: " + fmt.Sprintf(format, args...)})
}

// Error 记录一条错误
func (n *Notices) Error(format string, args ...any) {
	n.append(Notice{Kind: NoticeError, Text: "ERROR: " + fmt.Sprintf(format, args...)})
}

func (n *Notices) append(notice Notice) {
	n.mu.Lock()
	n.list = append(n.list, notice)
	n.mu.Unlock()
}

// Drain 取出所有消息并清空缓冲
func (n *Notices) Drain() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.list
	n.list = nil
	return out
}

// Texts 返回所有消息文本（不清空）
func (n *Notices) Texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	texts := make([]string, len(n.list))
	for i, notice := range n.list {
		texts[i] = notice.Text
	}
	return texts
}

// Len 当前缓冲的消息数
func (n *Notices) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.list)
}

// DrainToLog 把缓冲的消息追加到日志文本并清空缓冲
func (n *Notices) DrainToLog(logText string) string {
	var sb strings.Builder
	sb.WriteString(logText)
	for _, notice := range n.Drain() {
		sb.WriteString(notice.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
