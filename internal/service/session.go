package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/trailgazer/internal/config"
	"github.com/langchou/trailgazer/internal/geo"
	"github.com/langchou/trailgazer/internal/models"
	"github.com/langchou/trailgazer/internal/state"
)

// Session 单次访问的跟踪会话聚合
// 所有字段只通过持有 mu 的事件处理方法修改（单写者），
// 位置回调和围栏回调并发到达时不会在 hasCheckedIn / hasSentETANotice / route 上竞争
type Session struct {
	mu     sync.Mutex
	cfg    *config.Config
	logger *zap.Logger

	visitID     string
	sessionID   string
	recipientID string
	destination models.Coordinate

	machine *state.Machine

	// 单调标志位：false → true 至多一次，永不回退
	hasCheckedIn     bool
	hasSentETANotice bool
	checkInSample    *models.LocationSample

	// 节流后的轨迹（按时间戳严格有序，只追加）
	route          []models.LocationSample
	lastRecordedAt *time.Time

	startedAt time.Time
	endedAt   *time.Time
	active    bool
}

// newSession 创建跟踪会话
// 会话从创建起就是活跃态：发布到服务的瞬间对并发 start 的守卫立即可见，
// 不存在"已发布但尚未激活"的窗口
func newSession(
	cfg *config.Config,
	logger *zap.Logger,
	visitID, sessionID, recipientID string,
	destination models.Coordinate,
	onStateChange func(visitID, from, to string),
) *Session {
	return &Session{
		cfg:         cfg,
		logger:      logger,
		visitID:     visitID,
		sessionID:   sessionID,
		recipientID: recipientID,
		destination: destination,
		machine:     state.NewMachine(visitID, onStateChange),
		active:      true,
		startedAt:   time.Now(),
	}
}

// Start 产出围栏注册和初始（pre-arrival）策略命令
func (s *Session) Start() []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	return []Effect{
		RegisterRegionEffect{VisitID: s.visitID, Center: s.destination, RadiusM: s.cfg.GeofenceRadiusM},
		ApplyPolicyEffect{Policy: PolicyFor(PolicyPreArrival)},
	}
}

// HandleLocation 处理一个原始位置样本
// 精度合格的样本依次走轨迹记录、自动签到、ETA 三个评估器（针对同一个样本）；
// 不合格的样本只更新实时显示，绝不触碰任何状态
func (s *Session) HandleLocation(sample models.LocationSample) []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		// stop() 之后迟到的事件直接丢弃
		s.logger.Debug("Dropping location for inactive session", zap.String("visit_id", s.visitID))
		return nil
	}

	// 实时位置显示不受精度门槛限制（尽力而为）
	ts := sample.Timestamp
	s.machine.UpdateState(func(st *state.SessionState) {
		st.Latitude = sample.Latitude
		st.Longitude = sample.Longitude
		st.HorizontalAccuracyM = sample.HorizontalAccuracyM
		st.SpeedMps = sample.SpeedMps
		st.LastFixAt = &ts
	})

	if !s.isAccurate(sample) {
		s.logger.Debug("Dropping inaccurate sample",
			zap.String("visit_id", s.visitID),
			zap.Float64("horizontal_accuracy_m", sample.HorizontalAccuracyM))
		return nil
	}

	distanceM := geo.Distance(sample.Coordinate(), s.destination)

	var effects []Effect
	effects = append(effects, s.recordIfDueLocked(sample)...)
	effects = append(effects, s.evaluateCheckInLocked(sample, distanceM)...)
	effects = append(effects, s.evaluateETALocked(distanceM)...)
	return effects
}

// Stop 结束会话（幂等）：汇总轨迹、注销围栏、停止定位更新
// 第二次调用不产生任何效果
func (s *Session) Stop() []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}
	s.active = false

	now := time.Now()
	s.endedAt = &now

	totalDistanceM, pointCount := s.finalizeLocked()

	if s.machine.CanTransition(state.EventTerminate) {
		if err := s.machine.Trigger(state.EventTerminate); err != nil {
			s.logger.Warn("Failed to terminate session state", zap.Error(err))
		}
	}

	s.logger.Info("Session stopped",
		zap.String("visit_id", s.visitID),
		zap.Float64("total_distance_m", totalDistanceM),
		zap.Int("point_count", pointCount),
		zap.Bool("checked_in", s.hasCheckedIn))

	return []Effect{
		FinalizeEffect{VisitID: s.visitID, EndedAt: now, TotalDistanceM: totalDistanceM, PointCount: pointCount},
		UnregisterRegionEffect{VisitID: s.visitID},
		StopUpdatesEffect{},
	}
}

// IsActive 会话是否仍在跟踪
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// VisitID 会话对应的访问 ID
func (s *Session) VisitID() string {
	return s.visitID
}

// Snapshot 获取实时状态快照
func (s *Session) Snapshot() *state.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.GetState()
}

// policyStateLocked 由会话状态推导策略输入：签到对策略而言是终态
func (s *Session) policyStateLocked() PolicyState {
	if s.hasCheckedIn {
		return PolicyCheckedIn
	}
	switch s.machine.CurrentState() {
	case state.StateInside:
		return PolicyInside
	case state.StateOutside:
		return PolicyOutside
	default:
		return PolicyPreArrival
	}
}
