package service

import (
	"time"

	"github.com/langchou/trailgazer/internal/models"
)

// Effect 会话状态机产出的出站副作用命令
// 状态机只负责产出命令，执行由服务的异步 worker 完成，
// 持久化 / 通知失败不会阻塞或回滚会话内存状态
type Effect interface {
	isEffect()
}

// ApplyPolicyEffect 向定位提供方下发新的精度策略
type ApplyPolicyEffect struct {
	Policy AccuracyPolicy
}

// RegisterRegionEffect 注册目的地圆形围栏
type RegisterRegionEffect struct {
	VisitID string
	Center  models.Coordinate
	RadiusM float64
}

// UnregisterRegionEffect 注销围栏
type UnregisterRegionEffect struct {
	VisitID string
}

// StopUpdatesEffect 停止定位提供方的更新
type StopUpdatesEffect struct{}

// PersistSessionStartEffect 落库会话开始记录
type PersistSessionStartEffect struct {
	Visit *models.Visit
}

// PersistRoutePointEffect 落库一个轨迹点
type PersistRoutePointEffect struct {
	Point models.RoutePoint
}

// PersistCheckInEffect 落库签到记录（时间、位置、签到时距离）
type PersistCheckInEffect struct {
	VisitID   string
	At        time.Time
	Latitude  float64
	Longitude float64
	DistanceM float64
}

// PersistETANoticeEffect 落库 ETA 提醒记录
type PersistETANoticeEffect struct {
	VisitID string
	At      time.Time
	Minutes float64
}

// FinalizeEffect 落库会话结束记录（结束时间、总距离、轨迹点数）
type FinalizeEffect struct {
	VisitID        string
	EndedAt        time.Time
	TotalDistanceM float64
	PointCount     int
}

// NotifyCheckInEffect 发送"已签到"通知
type NotifyCheckInEffect struct {
	VisitID     string
	RecipientID string
	At          time.Time
}

// NotifyETAEffect 发送"还有 N 分钟到达"通知
type NotifyETAEffect struct {
	VisitID     string
	RecipientID string
	Minutes     float64
}

func (ApplyPolicyEffect) isEffect()         {}
func (RegisterRegionEffect) isEffect()      {}
func (UnregisterRegionEffect) isEffect()    {}
func (StopUpdatesEffect) isEffect()         {}
func (PersistSessionStartEffect) isEffect() {}
func (PersistRoutePointEffect) isEffect()   {}
func (PersistCheckInEffect) isEffect()      {}
func (PersistETANoticeEffect) isEffect()    {}
func (FinalizeEffect) isEffect()            {}
func (NotifyCheckInEffect) isEffect()       {}
func (NotifyETAEffect) isEffect()           {}
