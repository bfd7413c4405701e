package monitor

import (
	"errors"
	"fmt"
	"sync"
)

// State 监测状态
type State int

const (
	StatePreparing State = iota
	StateMonitoring
	StateIncident
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateMonitoring:
		return "monitoring"
	case StateIncident:
		return "incident"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText 以小写名称序列化
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event 状态机事件
type Event int

const (
	EventReady     Event = iota // 初始化完成
	EventAnomaly                // 检测到异常
	EventCollected              // 证据采集（及上传）结束
	EventStop                   // 会话停止
)

func (e Event) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventAnomaly:
		return "anomaly"
	case EventCollected:
		return "collected"
	case EventStop:
		return "stop"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ErrInvalidTransition 当前状态不接受该事件
var ErrInvalidTransition = errors.New("invalid state transition")

// Transition 一次状态迁移
type Transition struct {
	From  State
	To    State
	Event Event
}

// TransitionAction 迁移动作，返回错误时迁移不生效
type TransitionAction func(t Transition) error

type transitionKey struct {
	from  State
	event Event
}

// 合法迁移表
var transitions = map[transitionKey]State{
	{StatePreparing, EventReady}:    StateMonitoring,
	{StateMonitoring, EventAnomaly}: StateIncident,
	{StateIncident, EventCollected}: StatePreparing,
	{StatePreparing, EventStop}:     StateStopped,
	{StateMonitoring, EventStop}:    StateStopped,
	{StateIncident, EventStop}:      StateStopped,
}

// StateMachine 监测状态机
// Fire 只由会话 goroutine 调用，State 可并发读取
type StateMachine struct {
	mu      sync.RWMutex
	state   State
	actions map[transitionKey][]TransitionAction
}

// NewStateMachine 创建状态机，初始状态为 Preparing
func NewStateMachine() *StateMachine {
	return &StateMachine{
		state:   StatePreparing,
		actions: make(map[transitionKey][]TransitionAction),
	}
}

// On 注册在 from 状态收到 event 时执行的动作
func (m *StateMachine) On(from State, event Event, action TransitionAction) {
	key := transitionKey{from, event}
	m.actions[key] = append(m.actions[key], action)
}

// State 当前状态
func (m *StateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Fire 触发事件
// 非法事件返回 ErrInvalidTransition；动作失败时保持原状态并返回动作的错误
func (m *StateMachine) Fire(event Event) (State, error) {
	from := m.State()
	key := transitionKey{from, event}
	to, ok := transitions[key]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}

	t := Transition{From: from, To: to, Event: event}
	for _, action := range m.actions[key] {
		if err := action(t); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	m.state = to
	m.mu.Unlock()
	return to, nil
}
