package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataEncodeDecode(t *testing.T) {
	d := &Data{
		Handler:    "import-pages",
		Subject:    "page:1042",
		MaxRecords: 5000,
		Milestone:  100,
		Extra:      map[string]any{"batch": "2024-q1"},
	}

	encoded, err := d.Encode()
	require.NoError(t, err)

	decoded, err := DecodeData(encoded)
	require.NoError(t, err)
	assert.Equal(t, "import-pages", decoded.Handler)
	assert.Equal(t, "page:1042", decoded.Subject)
	assert.Equal(t, int64(5000), decoded.MaxRecords)
	assert.Equal(t, "2024-q1", decoded.GetExtraString("batch"))
}

func TestSignatureDeterministic(t *testing.T) {
	d1 := &Data{Handler: "h", Subject: "s", MaxRecords: 10}
	d2 := &Data{Handler: "h", Subject: "s", MaxRecords: 10}

	s1, err := d1.Signature()
	require.NoError(t, err)
	s2, err := d2.Signature()
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	// 不同的初始负载产生不同签名
	d3 := &Data{Handler: "h", Subject: "s", MaxRecords: 11}
	s3, err := d3.Signature()
	require.NoError(t, err)
	assert.NotEqual(t, s1, s3)
}

func TestProgressRounding(t *testing.T) {
	d := &Data{MaxRecords: 100}

	d.RecordsProcessed = 10
	assert.Equal(t, 10.0, d.Progress())

	d.RecordsProcessed = 25
	assert.Equal(t, 25.0, d.Progress())

	// 保留两位小数
	d.MaxRecords = 3
	d.RecordsProcessed = 1
	assert.Equal(t, 33.33, d.Progress())
}

func TestProgressIndeterminate(t *testing.T) {
	// MaxRecords为0时无法推算进度
	d := &Data{RecordsProcessed: 42}
	assert.Equal(t, -1.0, d.Progress())
}

func TestMilestoneReached(t *testing.T) {
	d := &Data{Milestone: 100, RecordsProcessed: 99}
	assert.False(t, d.MilestoneReached())

	d.RecordsProcessed = 100
	assert.True(t, d.MilestoneReached())

	// 未设置里程碑时永远不触发
	d.Milestone = 0
	assert.False(t, d.MilestoneReached())
}

func TestAddRelations(t *testing.T) {
	d := &Data{}
	d.AddDependency("t1")
	d.AddDependency("t2")
	d.AddSuccessor("t3")
	assert.Equal(t, []string{"t1", "t2"}, d.Dependencies)
	assert.Equal(t, []string{"t3"}, d.Successors)
}

func TestExtra(t *testing.T) {
	d := &Data{}
	_, ok := d.GetExtra("missing")
	assert.False(t, ok)
	assert.Equal(t, "", d.GetExtraString("missing"))

	d.SetExtra("count", 7)
	assert.Equal(t, "7", d.GetExtraString("count"))
}
