package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/langchou/trailgazer/internal/geo"
	"github.com/langchou/trailgazer/internal/state"
)

// evaluateETALocked ETA 评估
// 实时 ETA 观测值每个合格样本都更新；一次性提醒只在预计到达时间
// 落入半开窗口 (lower, upper] 时触发一次。
// 窗口语义刻意保持窄：如果相邻两个样本的 ETA 直接跳过整个窗口，
// 这次访问的提醒就不会再发（接受漏发，换取至多一次）
func (s *Session) evaluateETALocked(distanceM float64) []Effect {
	etaSec := geo.EstimatedTravelSeconds(distanceM, s.cfg.WalkingSpeedMps)
	minutes := etaSec / 60

	// 实时 ETA 与一次性提醒互相独立
	s.machine.UpdateState(func(st *state.SessionState) {
		m := minutes
		st.ETAMinutes = &m
	})

	if s.hasSentETANotice {
		return nil
	}
	if !(etaSec > s.cfg.ETANoticeLowerSec && etaSec <= s.cfg.ETANoticeUpperSec) {
		return nil
	}

	s.hasSentETANotice = true
	s.machine.UpdateState(func(st *state.SessionState) {
		st.HasSentETANotice = true
	})

	s.logger.Info("ETA notice fired",
		zap.String("visit_id", s.visitID),
		zap.Float64("eta_sec", etaSec),
		zap.Float64("distance_m", distanceM))

	return []Effect{
		PersistETANoticeEffect{VisitID: s.visitID, At: time.Now(), Minutes: minutes},
		NotifyETAEffect{VisitID: s.visitID, RecipientID: s.recipientID, Minutes: minutes},
	}
}
