package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 会话状态常量
const (
	StatePreArrival = "pre_arrival" // 启动后、首次围栏分类前的过渡态
	StateOutside    = "outside"     // 围栏外
	StateInside     = "inside"      // 围栏内
	StateTerminated = "terminated"  // 已结束
)

// 事件常量
const (
	EventEnterGeofence = "enter_geofence"
	EventExitGeofence  = "exit_geofence"
	EventTerminate     = "terminate"
)

// SessionState 会话实时状态快照（供 UI / WebSocket 消费）
type SessionState struct {
	VisitID             string     `json:"visit_id"`
	CurrentState        string     `json:"state"`
	Since               time.Time  `json:"since"`
	Latitude            float64    `json:"latitude"`
	Longitude           float64    `json:"longitude"`
	HorizontalAccuracyM float64    `json:"horizontal_accuracy_m"`
	SpeedMps            float64    `json:"speed_mps"`
	InsideGeofence      bool       `json:"inside_geofence"`
	RegionMonitored     bool       `json:"region_monitored"` // 围栏注册是否成功，false 表示纯距离判定
	HasCheckedIn        bool       `json:"has_checked_in"`
	HasSentETANotice    bool       `json:"has_sent_eta_notice"`
	ETAMinutes          *float64   `json:"eta_minutes,omitempty"` // 实时 ETA（分钟），无样本前为空
	LastFixAt           *time.Time `json:"last_fix_at,omitempty"`
}

// Machine 访问会话状态机
// 围栏进出只影响顶层状态；签到 / ETA 提醒是叠加在其上的单调标志位
type Machine struct {
	mu            sync.RWMutex
	visitID       string
	fsm           *fsm.FSM
	state         *SessionState
	onStateChange func(visitID string, from, to string)
}

// NewMachine 创建会话状态机，初始态为 pre_arrival
func NewMachine(visitID string, onStateChange func(visitID string, from, to string)) *Machine {
	m := &Machine{
		visitID:       visitID,
		onStateChange: onStateChange,
		state: &SessionState{
			VisitID:      visitID,
			CurrentState: StatePreArrival,
			Since:        time.Now(),
		},
	}

	m.fsm = fsm.NewFSM(
		StatePreArrival,
		fsm.Events{
			// 首次分类前也可以直接进围栏
			{Name: EventEnterGeofence, Src: []string{StatePreArrival, StateOutside}, Dst: StateInside},
			{Name: EventExitGeofence, Src: []string{StatePreArrival, StateInside}, Dst: StateOutside},
			{Name: EventTerminate, Src: []string{StatePreArrival, StateOutside, StateInside}, Dst: StateTerminated},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.visitID, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// GetState 获取完整状态快照
func (m *Machine) GetState() *SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// 返回副本
	stateCopy := *m.state
	stateCopy.CurrentState = m.fsm.Current()
	stateCopy.InsideGeofence = m.fsm.Current() == StateInside
	return &stateCopy
}

// UpdateState 更新状态数据
func (m *Machine) UpdateState(update func(s *SessionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	update(m.state)
}

// Trigger 触发事件
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}

	m.state.CurrentState = m.fsm.Current()
	m.state.Since = time.Now()
	return nil
}

// CanTransition 检查是否可以转换
func (m *Machine) CanTransition(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}
