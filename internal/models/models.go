package models

import "time"

// Coordinate 经纬度坐标（不可变值对象）
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationSample 定位提供方上报的原始位置样本
// 一次访问会产生大量样本，样本本身不可变
type LocationSample struct {
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
	AltitudeM           float64   `json:"altitude_m"`
	HorizontalAccuracyM float64   `json:"horizontal_accuracy_m"` // 水平精度（米），越小越准
	VerticalAccuracyM   float64   `json:"vertical_accuracy_m"`
	SpeedMps            float64   `json:"speed_mps"`
	Course              float64   `json:"course"` // 航向（度，0-360）
	Timestamp           time.Time `json:"timestamp"`
}

// Coordinate 提取样本的坐标
func (s LocationSample) Coordinate() Coordinate {
	return Coordinate{Latitude: s.Latitude, Longitude: s.Longitude}
}

// RegionEventType 围栏事件类型
type RegionEventType string

const (
	RegionEnter RegionEventType = "enter"
	RegionExit  RegionEventType = "exit"
)

// RegionEvent 定位提供方上报的围栏进出事件
type RegionEvent struct {
	RegionID  string          `json:"region_id"` // 与 visit_id 对应
	Type      RegionEventType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
}

// RoutePoint 访问轨迹点（节流后落库的样本）
type RoutePoint struct {
	ID                  int64     `json:"id" db:"id"`
	VisitID             string    `json:"visit_id" db:"visit_id"`
	Latitude            float64   `json:"latitude" db:"latitude"`
	Longitude           float64   `json:"longitude" db:"longitude"`
	AltitudeM           float64   `json:"altitude_m" db:"altitude_m"`
	HorizontalAccuracyM float64   `json:"horizontal_accuracy_m" db:"horizontal_accuracy_m"`
	SpeedMps            float64   `json:"speed_mps" db:"speed_mps"`
	Course              float64   `json:"course" db:"course"`
	RecordedAt          time.Time `json:"recorded_at" db:"recorded_at"`
}

// RouteStatistics 访问轨迹统计（按需从持久化记录计算，不在会话内缓存）
type RouteStatistics struct {
	VisitID        string  `json:"visit_id"`
	TotalDistanceM float64 `json:"total_distance_m"`
	PointCount     int     `json:"point_count"`
	HasCheckedIn   bool    `json:"has_checked_in"`
}
