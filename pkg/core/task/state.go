package task

// State 任务生命周期状态（对外导出）
// 数值持久化到存储层，顺序不可变更
type State int

const (
	StateUnknown   State = 0 // 未知状态
	StateActive    State = 1 // 就绪，可被调度执行
	StateWaiting   State = 2 // 等待激活（未激活或被挂起且无进度）
	StateFinished  State = 3 // 已完成（终态）
	StateKilled    State = 4 // 被用户终止（进度已重置）
	StateFailed    State = 5 // 执行失败
	StateSuspended State = 6 // 执行中途被挂起（保留进度）
)

// stateNames 状态的人类可读名称
var stateNames = map[State]string{
	StateUnknown:   "unknown",
	StateActive:    "active",
	StateWaiting:   "waiting",
	StateFinished:  "finished",
	StateKilled:    "killed",
	StateFailed:    "failed",
	StateSuspended: "suspended",
}

// ParseState 按名称解析状态
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return StateUnknown, false
}

// String 返回状态名称
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal 是否为终态（需要显式reset/activate才能重新进入调度）
func (s State) Terminal() bool {
	return s == StateFinished || s == StateKilled || s == StateFailed
}

// Activatable 是否允许激活
// Active状态重复激活视为幂等成功，其余非终态/终态均允许显式激活
func (s State) Activatable() bool {
	switch s {
	case StateWaiting, StateSuspended, StateFailed, StateKilled, StateActive, StateFinished:
		return true
	default:
		return false
	}
}

// SuspendTarget 挂起后的目标状态
// 无进度时回到Waiting，有进度时进入Suspended
func SuspendTarget(progress float64) State {
	if progress == 0 {
		return StateWaiting
	}
	return StateSuspended
}
