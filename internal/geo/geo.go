package geo

import (
	"math"

	"github.com/langchou/trailgazer/internal/models"
)

// 地球平均半径（米）
const earthRadiusM = 6371000.0

// Distance 计算两个坐标之间的大圆距离（米）
// 使用 Haversine 公式，与定位提供方的距离语义保持一致
// 对相同坐标和对跖点都能给出有效结果
func Distance(a, b models.Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// 浮点误差可能让 h 略超 1，Min 夹住避免 Asin 出 NaN
	c := 2 * math.Asin(math.Min(1, math.Sqrt(h)))

	return earthRadiusM * c
}

// Bearing 计算从 a 到 b 的航向角（度，0-360，正北为 0）
func Bearing(a, b models.Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// EstimatedTravelSeconds 按恒定速度估算行进时间（秒）
// speedMps 由调用方提供（步行场景默认 1.4 m/s ≈ 5 km/h）
func EstimatedTravelSeconds(distanceM, speedMps float64) float64 {
	if speedMps <= 0 {
		return math.Inf(1)
	}
	return distanceM / speedMps
}
