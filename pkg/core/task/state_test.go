package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "finished", StateFinished.String())
	assert.Equal(t, "killed", StateKilled.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "suspended", StateSuspended.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestStateNumericValues(t *testing.T) {
	// 数值持久化到存储层，顺序不可变更
	assert.Equal(t, 0, int(StateUnknown))
	assert.Equal(t, 1, int(StateActive))
	assert.Equal(t, 2, int(StateWaiting))
	assert.Equal(t, 3, int(StateFinished))
	assert.Equal(t, 4, int(StateKilled))
	assert.Equal(t, 5, int(StateFailed))
	assert.Equal(t, 6, int(StateSuspended))
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateFinished.Terminal())
	assert.True(t, StateKilled.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateActive.Terminal())
	assert.False(t, StateWaiting.Terminal())
	assert.False(t, StateSuspended.Terminal())
}

func TestSuspendTarget(t *testing.T) {
	// 无进度时回到Waiting，有进度时进入Suspended
	assert.Equal(t, StateWaiting, SuspendTarget(0))
	assert.Equal(t, StateSuspended, SuspendTarget(12.5))
}

func TestParseState(t *testing.T) {
	s, ok := ParseState("active")
	assert.True(t, ok)
	assert.Equal(t, StateActive, s)

	_, ok = ParseState("nonsense")
	assert.False(t, ok)
}
