package service

import (
	"github.com/langchou/trailgazer/internal/geo"
	"github.com/langchou/trailgazer/internal/models"
)

// isAccurate 样本精度校验：0 <= 水平精度 <= 阈值（默认 50 米）
// 不合格样本在进入任何评估器之前被丢弃
func (s *Session) isAccurate(sample models.LocationSample) bool {
	return sample.HorizontalAccuracyM >= 0 && sample.HorizontalAccuracyM <= s.cfg.MinAccuracyM
}

// recordIfDueLocked 节流追加轨迹点
// 仅当从未记录过、或距上个点的时间戳 >= 节流间隔时追加；
// 时间戳早于上个点的乱序样本同样会被节流条件拒绝，保证轨迹严格有序
func (s *Session) recordIfDueLocked(sample models.LocationSample) []Effect {
	if s.lastRecordedAt != nil && sample.Timestamp.Sub(*s.lastRecordedAt) < s.cfg.RoutePointInterval {
		return nil
	}

	s.route = append(s.route, sample)
	ts := sample.Timestamp
	s.lastRecordedAt = &ts

	// 每个轨迹点即时落库（fire-and-forget）
	return []Effect{PersistRoutePointEffect{Point: models.RoutePoint{
		VisitID:             s.visitID,
		Latitude:            sample.Latitude,
		Longitude:           sample.Longitude,
		AltitudeM:           sample.AltitudeM,
		HorizontalAccuracyM: sample.HorizontalAccuracyM,
		SpeedMps:            sample.SpeedMps,
		Course:              sample.Course,
		RecordedAt:          sample.Timestamp,
	}}}
}

// finalizeLocked 按记录顺序对相邻轨迹点求测地距离之和
// 轨迹为空或只有一个点时总距离为 0
func (s *Session) finalizeLocked() (totalDistanceM float64, pointCount int) {
	for i := 1; i < len(s.route); i++ {
		totalDistanceM += geo.Distance(s.route[i-1].Coordinate(), s.route[i].Coordinate())
	}
	return totalDistanceM, len(s.route)
}
