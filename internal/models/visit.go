package models

import "time"

// Visit 访问跟踪会话的持久化记录
// 活跃期间由跟踪服务以追加/合并方式写入，"尚未发生"的字段保持 NULL
type Visit struct {
	ID          int64  `json:"id" db:"id"`
	VisitID     string `json:"visit_id" db:"visit_id"`
	SessionID   string `json:"session_id" db:"session_id"`
	RecipientID string `json:"recipient_id" db:"recipient_id"`

	// 目的地（启动时地理编码一次，会话期间不变）
	DestinationLat     float64  `json:"destination_lat" db:"destination_lat"`
	DestinationLng     float64  `json:"destination_lng" db:"destination_lng"`
	DestinationAddress *Address `json:"destination_address,omitempty" db:"destination_address"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	IsActive  bool       `json:"is_active" db:"is_active"`

	// 自动签到（最多发生一次）
	CheckedInAt      *time.Time `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CheckinLat       *float64   `json:"checkin_lat,omitempty" db:"checkin_lat"`
	CheckinLng       *float64   `json:"checkin_lng,omitempty" db:"checkin_lng"`
	CheckinDistanceM *float64   `json:"checkin_distance_m,omitempty" db:"checkin_distance_m"`

	// ETA 提醒（最多发生一次）
	ETANoticeAt *time.Time `json:"eta_notice_at,omitempty" db:"eta_notice_at"`
	ETAMinutes  *float64   `json:"eta_minutes,omitempty" db:"eta_minutes"`

	// 结束统计
	TotalDistanceM float64 `json:"total_distance_m" db:"total_distance_m"`
	PointCount     int     `json:"point_count" db:"point_count"`
}

// HasCheckedIn 是否已自动签到
func (v *Visit) HasCheckedIn() bool {
	return v.CheckedInAt != nil
}
