package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/langchou/trailgazer/internal/models"
	"github.com/langchou/trailgazer/internal/state"
)

// evaluateCheckInLocked 自动签到评估：一次性触发
// 前置条件：样本已通过精度校验、尚未签到
// 规则：距目的地 <= 自动签到半径即触发；判定和置位在同一把锁内完成，
// 并发样本不可能产生第二次签到
func (s *Session) evaluateCheckInLocked(sample models.LocationSample, distanceM float64) []Effect {
	if s.hasCheckedIn {
		return nil
	}
	if distanceM > s.cfg.AutoCheckinRadiusM {
		return nil
	}

	s.hasCheckedIn = true
	sampleCopy := sample
	s.checkInSample = &sampleCopy
	s.machine.UpdateState(func(st *state.SessionState) {
		st.HasCheckedIn = true
	})

	s.logger.Info("Auto check-in fired",
		zap.String("visit_id", s.visitID),
		zap.Float64("distance_m", distanceM),
		zap.Time("at", sample.Timestamp))

	// 签到强制回落到粗精度策略
	return []Effect{
		PersistCheckInEffect{
			VisitID:   s.visitID,
			At:        time.Now(),
			Latitude:  sample.Latitude,
			Longitude: sample.Longitude,
			DistanceM: distanceM,
		},
		ApplyPolicyEffect{Policy: PolicyFor(PolicyCheckedIn)},
		NotifyCheckInEffect{VisitID: s.visitID, RecipientID: s.recipientID, At: time.Now()},
	}
}
