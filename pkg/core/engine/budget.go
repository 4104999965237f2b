package engine

import (
	"runtime"
	"sync"
	"time"
)

const (
	// memSafetyThreshold 内存预算的安全余量
	// 预算先减去该余量再参与比较，保证触发时还有空间写最后一条日志
	memSafetyThreshold = 5 << 20 // 5 MiB

	// memHeadroomFactor 内存占用的预警系数
	// 实际占用超过可用预算的该比例即视为预算耗尽
	memHeadroomFactor = 0.8

	// timeSafetyMargin 时间预算的安全余量
	timeSafetyMargin = time.Second
)

// Budget 单轮执行的资源预算（对外导出）
type Budget struct {
	Deadline    time.Time // 绝对截止时间，零值表示不限时
	MemoryLimit uint64    // 内存上限（字节），0表示不限制
}

// TimeExhausted 时间预算是否已耗尽
func (b Budget) TimeExhausted(now time.Time) bool {
	if b.Deadline.IsZero() {
		return false
	}
	return b.Deadline.Sub(now) <= timeSafetyMargin
}

// MemoryExhausted 内存预算是否已耗尽
// 通过runtime.ReadMemStats读取当前堆占用
func (b Budget) MemoryExhausted() bool {
	if b.MemoryLimit == 0 {
		return false
	}
	available := b.MemoryLimit
	if available <= memSafetyThreshold {
		return true
	}
	available -= memSafetyThreshold

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Alloc) > memHeadroomFactor*float64(available)
}

// Exhausted 任一预算是否耗尽
func (b Budget) Exhausted(now time.Time) bool {
	return b.TimeExhausted(now) || b.MemoryExhausted()
}

// faultSlack 故障屏障预留的内存余量
// panic处理路径释放它，保证内存耗尽时还有空间写最后的日志
type faultSlack struct {
	once sync.Once
	buf  []byte
}

const faultSlackSize = 1 << 20 // 1 MiB

func reserveFaultSlack() *faultSlack {
	return &faultSlack{buf: make([]byte, faultSlackSize)}
}

// Release 释放预留内存（可重复调用，放弃的goroutine和引擎可能并发调用）
func (s *faultSlack) Release() {
	s.once.Do(func() {
		s.buf = nil
	})
}
