package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/mtwebit/tasker/pkg/core/task"
)

// TopicTaskStateChanged 任务状态变更事件主题
const TopicTaskStateChanged = "tasker.task.state_changed"

// StateChangedEvent 任务状态变更事件（对外导出）
// 每次生命周期状态落库成功后由引擎发布
type StateChangedEvent struct {
	TaskID    string     `json:"task_id"`
	Title     string     `json:"title"`
	From      task.State `json:"from_state"`
	To        task.State `json:"to_state"`
	Invoker   string     `json:"invoker"` // 触发变更的调用方标识
	Timestamp time.Time  `json:"timestamp"`
}

// EventBus 进程内事件总线（对外导出）
// 基于Watermill的GoChannel实现，状态变更的观察者（日志消费者、测试）通过它订阅
type EventBus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewEventBus 创建事件总线
func NewEventBus(debug bool) *EventBus {
	logger := watermill.NewStdLogger(debug, false)
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
	return &EventBus{pubsub: pubsub, logger: logger}
}

// PublishStateChanged 发布状态变更事件
func (b *EventBus) PublishStateChanged(ev StateChangedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化状态变更事件失败: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("task_id", ev.TaskID)
	msg.Metadata.Set("to_state", ev.To.String())
	msg.Metadata.Set("timestamp", ev.Timestamp.Format(time.RFC3339Nano))

	if err := b.pubsub.Publish(TopicTaskStateChanged, msg); err != nil {
		return fmt.Errorf("发布状态变更事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅状态变更事件
func (b *EventBus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicTaskStateChanged)
}

// Close 关闭事件总线
func (b *EventBus) Close() error {
	return b.pubsub.Close()
}

// DecodeStateChanged 从消息解码状态变更事件
func DecodeStateChanged(msg *message.Message) (*StateChangedEvent, error) {
	var ev StateChangedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, fmt.Errorf("反序列化状态变更事件失败: %w", err)
	}
	return &ev, nil
}
