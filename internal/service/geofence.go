package service

import (
	"go.uber.org/zap"

	"github.com/langchou/trailgazer/internal/models"
	"github.com/langchou/trailgazer/internal/state"
)

// HandleRegionEvent 处理定位提供方上报的围栏进出事件
// 只响应与当前会话匹配的 region；围栏分类变化会触发策略重算。
// 签到之后围栏退出只做记录，不再改变策略（签到已强制粗精度）
func (s *Session) HandleRegionEvent(ev models.RegionEvent) []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		s.logger.Debug("Dropping region event for inactive session", zap.String("region_id", ev.RegionID))
		return nil
	}
	if ev.RegionID != s.visitID {
		s.logger.Debug("Ignoring region event for unknown region",
			zap.String("region_id", ev.RegionID),
			zap.String("visit_id", s.visitID))
		return nil
	}

	switch ev.Type {
	case models.RegionEnter:
		return s.onRegionEnterLocked()
	case models.RegionExit:
		return s.onRegionExitLocked()
	default:
		s.logger.Warn("Unknown region event type", zap.String("type", string(ev.Type)))
		return nil
	}
}

// onRegionEnterLocked 围栏进入：outside / pre_arrival → inside
func (s *Session) onRegionEnterLocked() []Effect {
	if !s.machine.CanTransition(state.EventEnterGeofence) {
		return nil
	}
	if err := s.machine.Trigger(state.EventEnterGeofence); err != nil {
		s.logger.Warn("Failed to apply geofence enter", zap.Error(err))
		return nil
	}

	s.logger.Info("Entered geofence", zap.String("visit_id", s.visitID))
	return []Effect{ApplyPolicyEffect{Policy: PolicyFor(s.policyStateLocked())}}
}

// onRegionExitLocked 围栏退出：仅在未签到时回到 outside 并重算策略
func (s *Session) onRegionExitLocked() []Effect {
	if s.hasCheckedIn {
		// 已签到：只记录，策略保持签到态
		s.logger.Info("Region exit after check-in, policy unchanged", zap.String("visit_id", s.visitID))
		return nil
	}
	if !s.machine.CanTransition(state.EventExitGeofence) {
		return nil
	}
	if err := s.machine.Trigger(state.EventExitGeofence); err != nil {
		s.logger.Warn("Failed to apply geofence exit", zap.Error(err))
		return nil
	}

	s.logger.Info("Exited geofence", zap.String("visit_id", s.visitID))
	return []Effect{ApplyPolicyEffect{Policy: PolicyFor(s.policyStateLocked())}}
}

// MarkRegionRegistered 记录围栏注册结果到状态快照
// 注册失败不致命：自动签到只依赖距离判定，跟踪以退化模式继续，
// UI 通过快照里的 region_monitored 看到退化状态
func (s *Session) MarkRegionRegistered(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.UpdateState(func(st *state.SessionState) {
		st.RegionMonitored = ok
	})
}
