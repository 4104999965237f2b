package dao

import (
	"time"

	"github.com/mtwebit/tasker/pkg/core/task"
	"github.com/mtwebit/tasker/pkg/storage"
)

// TaskDAO 任务表的数据库映射对象
type TaskDAO struct {
	ID         string    `db:"id"`
	Title      string    `db:"title"`
	Subject    string    `db:"subject"`
	TaskData   string    `db:"task_data"`
	Signature  string    `db:"signature"`
	TaskState  int       `db:"task_state"`
	Running    bool      `db:"task_running"`
	Progress   float64   `db:"progress"`
	Log        string    `db:"log_messages"`
	Trashed    bool      `db:"trashed"`
	CreateTime time.Time `db:"create_time"`
}

// ToRecord 将DAO转换为领域记录（反序列化任务数据）
func (d *TaskDAO) ToRecord() (*storage.TaskRecord, error) {
	data, err := task.DecodeData(d.TaskData)
	if err != nil {
		return nil, err
	}
	return &storage.TaskRecord{
		ID:         d.ID,
		Title:      d.Title,
		Subject:    d.Subject,
		Data:       data,
		Signature:  d.Signature,
		State:      task.State(d.TaskState),
		Running:    d.Running,
		Progress:   d.Progress,
		Log:        d.Log,
		Trashed:    d.Trashed,
		CreateTime: d.CreateTime,
	}, nil
}

// FromRecord 将领域记录转换为DAO（序列化任务数据）
func FromRecord(r *storage.TaskRecord) (*TaskDAO, error) {
	raw, err := r.Data.Encode()
	if err != nil {
		return nil, err
	}
	return &TaskDAO{
		ID:         r.ID,
		Title:      r.Title,
		Subject:    r.Subject,
		TaskData:   raw,
		Signature:  r.Signature,
		TaskState:  int(r.State),
		Running:    r.Running,
		Progress:   r.Progress,
		Log:        r.Log,
		Trashed:    r.Trashed,
		CreateTime: r.CreateTime,
	}, nil
}
