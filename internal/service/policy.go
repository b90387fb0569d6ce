package service

// PolicyState 精度策略的输入状态
type PolicyState string

const (
	PolicyPreArrival PolicyState = "pre_arrival" // 启动后首次围栏分类前
	PolicyOutside    PolicyState = "outside"     // 围栏外（省电）
	PolicyInside     PolicyState = "inside"      // 围栏内（高精度逼近）
	PolicyCheckedIn  PolicyState = "checked_in"  // 已签到（对策略而言是终态）
)

// AccuracyBest 表示请求设备可用的最佳定位精度
const AccuracyBest = 0

// AccuracyPolicy 下发给定位提供方的精度 / 移动过滤配置
type AccuracyPolicy struct {
	DesiredAccuracyM float64 `json:"desired_accuracy_m"` // 期望精度（米），0 = 设备最佳
	MinMovementM     float64 `json:"min_movement_m"`     // 最小移动过滤（米）
}

// PolicyFor 纯函数：会话状态 → 精度策略
// 签到后无论围栏状态如何都回落到粗精度，省电
func PolicyFor(st PolicyState) AccuracyPolicy {
	switch st {
	case PolicyInside:
		return AccuracyPolicy{DesiredAccuracyM: AccuracyBest, MinMovementM: 5}
	case PolicyCheckedIn:
		return AccuracyPolicy{DesiredAccuracyM: 100, MinMovementM: 50}
	case PolicyPreArrival:
		return AccuracyPolicy{DesiredAccuracyM: AccuracyBest, MinMovementM: 10}
	default: // PolicyOutside
		return AccuracyPolicy{DesiredAccuracyM: 100, MinMovementM: 50}
	}
}
