package service

import (
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/trailgazer/internal/config"
	"github.com/langchou/trailgazer/internal/models"
	"github.com/langchou/trailgazer/internal/state"
)

func testConfig() *config.Config {
	return &config.Config{
		GeofenceRadiusM:    200,
		AutoCheckinRadiusM: 100,
		MinAccuracyM:       50,
		RoutePointInterval: 30 * time.Second,
		WalkingSpeedMps:    1.4,
		ETANoticeLowerSec:  240,
		ETANoticeUpperSec:  300,
	}
}

func newTestSession(destination models.Coordinate) *Session {
	sess := newSession(testConfig(), zap.NewNop(), "visit-1", "session-1", "owner-1", destination, nil)
	sess.Start()
	return sess
}

func sample(lat, lng, accuracy float64, ts time.Time) models.LocationSample {
	return models.LocationSample{
		Latitude:            lat,
		Longitude:           lng,
		HorizontalAccuracyM: accuracy,
		Timestamp:           ts,
	}
}

func countEffects(effects []Effect, match func(Effect) bool) int {
	n := 0
	for _, e := range effects {
		if match(e) {
			n++
		}
	}
	return n
}

func isCheckIn(e Effect) bool {
	_, ok := e.(PersistCheckInEffect)
	return ok
}

func isCheckInNotice(e Effect) bool {
	_, ok := e.(NotifyCheckInEffect)
	return ok
}

func isETANotice(e Effect) bool {
	_, ok := e.(NotifyETAEffect)
	return ok
}

func isRoutePoint(e Effect) bool {
	_, ok := e.(PersistRoutePointEffect)
	return ok
}

func TestStartEffects(t *testing.T) {
	dest := models.Coordinate{Latitude: 31.2304, Longitude: 121.4737}
	sess := newSession(testConfig(), zap.NewNop(), "visit-1", "session-1", "owner-1", dest, nil)

	effects := sess.Start()
	if len(effects) != 2 {
		t.Fatalf("expected 2 start effects, got %d", len(effects))
	}

	reg, ok := effects[0].(RegisterRegionEffect)
	if !ok || reg.VisitID != "visit-1" || reg.Center != dest || reg.RadiusM != 200 {
		t.Fatalf("unexpected region effect: %+v", effects[0])
	}

	pol, ok := effects[1].(ApplyPolicyEffect)
	if !ok || pol.Policy != PolicyFor(PolicyPreArrival) {
		t.Fatalf("expected pre-arrival policy, got %+v", effects[1])
	}
}

func TestAutoCheckInBoundary(t *testing.T) {
	// 目的地 (0,0)，签到半径 100 米
	sess := newTestSession(models.Coordinate{})
	now := time.Now()

	// 0.0009 度经度差 ≈ 100.07 米 > 100 米，不触发
	effects := sess.HandleLocation(sample(0, 0.0009, 10, now))
	if countEffects(effects, isCheckIn) != 0 {
		t.Fatalf("check-in fired outside radius")
	}

	// 0.0008 度 ≈ 88.95 米，触发一次
	effects = sess.HandleLocation(sample(0, 0.0008, 10, now.Add(time.Second)))
	if countEffects(effects, isCheckIn) != 1 || countEffects(effects, isCheckInNotice) != 1 {
		t.Fatalf("expected exactly one check-in, effects: %+v", effects)
	}

	// 签到强制粗精度策略
	found := false
	for _, e := range effects {
		if pol, ok := e.(ApplyPolicyEffect); ok && pol.Policy == PolicyFor(PolicyCheckedIn) {
			found = true
		}
	}
	if !found {
		t.Fatalf("check-in did not force coarse policy")
	}

	// 不会再次触发
	effects = sess.HandleLocation(sample(0, 0.0008, 10, now.Add(2*time.Second)))
	if countEffects(effects, isCheckIn) != 0 {
		t.Fatalf("check-in fired twice")
	}
}

func TestInaccurateSampleImmunity(t *testing.T) {
	sess := newTestSession(models.Coordinate{})
	now := time.Now()

	// 精度 60 米 > 50 米阈值：即使在目的地正上方也不签到
	effects := sess.HandleLocation(sample(0, 0, 60, now))
	if len(effects) != 0 {
		t.Fatalf("inaccurate sample produced effects: %+v", effects)
	}

	// 精度 9999 米同样被拒
	effects = sess.HandleLocation(sample(0, 0, 9999, now.Add(time.Second)))
	if len(effects) != 0 {
		t.Fatalf("wildly inaccurate sample produced effects")
	}

	// 负精度表示无效样本
	effects = sess.HandleLocation(sample(0, 0, -1, now.Add(2*time.Second)))
	if len(effects) != 0 {
		t.Fatalf("negative accuracy sample produced effects")
	}

	sess.mu.Lock()
	checkedIn, noticeSent, routeLen := sess.hasCheckedIn, sess.hasSentETANotice, len(sess.route)
	sess.mu.Unlock()
	if checkedIn || noticeSent || routeLen != 0 {
		t.Fatalf("inaccurate samples mutated session state")
	}

	// 实时显示仍然更新（尽力而为，不受门槛限制）
	snap := sess.Snapshot()
	if snap.HorizontalAccuracyM != -1 {
		t.Fatalf("live display not updated, accuracy=%v", snap.HorizontalAccuracyM)
	}
}

func TestConcurrentCheckInExactlyOnce(t *testing.T) {
	sess := newTestSession(models.Coordinate{})
	now := time.Now()

	var mu sync.Mutex
	checkIns, notices := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 每个样本单独都满足签到距离条件
			effects := sess.HandleLocation(sample(0, 0.0005, 10, now))
			mu.Lock()
			checkIns += countEffects(effects, isCheckIn)
			notices += countEffects(effects, isCheckInNotice)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if checkIns != 1 || notices != 1 {
		t.Fatalf("expected exactly one check-in and one notification, got %d / %d", checkIns, notices)
	}
}

func TestETANoticeWindow(t *testing.T) {
	sess := newTestSession(models.Coordinate{})
	now := time.Now()

	// 500 米 ⇒ ETA ≈ 357 秒，窗口 (240,300] 之上，不触发
	effects := sess.HandleLocation(sample(0, 0.004497, 10, now))
	if countEffects(effects, isETANotice) != 0 {
		t.Fatalf("eta notice fired above window")
	}

	// 400 米 ⇒ ETA ≈ 286 秒，落入窗口，触发一次
	effects = sess.HandleLocation(sample(0, 0.0035972, 10, now.Add(time.Second)))
	if countEffects(effects, isETANotice) != 1 {
		t.Fatalf("expected eta notice, effects: %+v", effects)
	}

	// 390 米 ⇒ ETA ≈ 279 秒，仍在窗口内但不会重复触发
	effects = sess.HandleLocation(sample(0, 0.0035073, 10, now.Add(2*time.Second)))
	if countEffects(effects, isETANotice) != 0 {
		t.Fatalf("eta notice fired twice")
	}

	// 实时 ETA 观测值独立于一次性提醒，始终更新
	snap := sess.Snapshot()
	if snap.ETAMinutes == nil {
		t.Fatalf("live eta not updated")
	}
	if math.Abs(*snap.ETAMinutes-279.0/60) > 0.1 {
		t.Fatalf("unexpected live eta: %v", *snap.ETAMinutes)
	}
}

func TestETAWindowSkippedIsPermanent(t *testing.T) {
	sess := newTestSession(models.Coordinate{})
	now := time.Now()

	// 500 米（ETA 357 秒）直接跳到 300 米（ETA 214 秒），整个窗口被跨过
	effects := sess.HandleLocation(sample(0, 0.004497, 10, now))
	effects = append(effects, sess.HandleLocation(sample(0, 0.0026979, 10, now.Add(time.Second)))...)
	if countEffects(effects, isETANotice) != 0 {
		t.Fatalf("eta notice fired outside window")
	}

	sess.mu.Lock()
	sent := sess.hasSentETANotice
	sess.mu.Unlock()
	if sent {
		t.Fatalf("eta flag set without firing")
	}
}

func TestRouteThrottleAndOrdering(t *testing.T) {
	// 目的地放远，避免签到/ETA 干扰
	sess := newTestSession(models.Coordinate{Latitude: 50, Longitude: 50})
	t0 := time.Now()

	cases := []struct {
		offset   time.Duration
		recorded bool
	}{
		{0, true},               // 第一个点总是记录
		{10 * time.Second, false}, // 节流
		{30 * time.Second, true},
		{40 * time.Second, false},
		{20 * time.Second, false}, // 乱序的旧样本被拒
		{65 * time.Second, true},
	}

	for i, tc := range cases {
		effects := sess.HandleLocation(sample(0, float64(i)*0.0001, 10, t0.Add(tc.offset)))
		got := countEffects(effects, isRoutePoint) == 1
		if got != tc.recorded {
			t.Fatalf("case %d (offset %v): recorded=%v, want %v", i, tc.offset, got, tc.recorded)
		}
	}

	sess.mu.Lock()
	route := append([]models.LocationSample(nil), sess.route...)
	sess.mu.Unlock()

	if len(route) != 3 {
		t.Fatalf("expected 3 recorded points, got %d", len(route))
	}
	for i := 1; i < len(route); i++ {
		gap := route[i].Timestamp.Sub(route[i-1].Timestamp)
		if gap < 30*time.Second {
			t.Fatalf("points %d/%d only %v apart", i-1, i, gap)
		}
	}
}

func TestFinalizeDistanceRightTriangle(t *testing.T) {
	sess := newTestSession(models.Coordinate{Latitude: 50, Longitude: 50})
	t0 := time.Now()

	// 直角三角形：两条直角边 300 米（沿经线）和 400 米（沿纬线）
	latStep := 300.0 / 6371000 * 180 / math.Pi
	lngStep := 400.0 / 6371000 * 180 / math.Pi

	sess.HandleLocation(sample(0, 0, 10, t0))
	sess.HandleLocation(sample(latStep, 0, 10, t0.Add(30*time.Second)))
	sess.HandleLocation(sample(latStep, lngStep, 10, t0.Add(60*time.Second)))

	effects := sess.Stop()

	var fin *FinalizeEffect
	for _, e := range effects {
		if f, ok := e.(FinalizeEffect); ok {
			fin = &f
		}
	}
	if fin == nil {
		t.Fatalf("no finalize effect")
	}
	if fin.PointCount != 3 {
		t.Fatalf("expected 3 points, got %d", fin.PointCount)
	}
	// 按顺序逐段求和：300 + 400 = 700（不是斜边 500）
	if math.Abs(fin.TotalDistanceM-700) > 1 {
		t.Fatalf("expected ~700m, got %v", fin.TotalDistanceM)
	}
}

func TestFinalizeEmptyRoute(t *testing.T) {
	sess := newTestSession(models.Coordinate{Latitude: 50, Longitude: 50})
	effects := sess.Stop()

	for _, e := range effects {
		if f, ok := e.(FinalizeEffect); ok {
			if f.TotalDistanceM != 0 || f.PointCount != 0 {
				t.Fatalf("empty route should finalize to zero, got %+v", f)
			}
			return
		}
	}
	t.Fatalf("no finalize effect")
}

func TestStopIdempotent(t *testing.T) {
	sess := newTestSession(models.Coordinate{Latitude: 50, Longitude: 50})
	sess.HandleLocation(sample(0, 0, 10, time.Now()))

	first := sess.Stop()
	if countEffects(first, func(e Effect) bool { _, ok := e.(FinalizeEffect); return ok }) != 1 {
		t.Fatalf("first stop did not finalize")
	}

	second := sess.Stop()
	if len(second) != 0 {
		t.Fatalf("second stop produced effects: %+v", second)
	}

	// stop 之后迟到的事件被丢弃
	if effects := sess.HandleLocation(sample(0, 0.001, 10, time.Now())); len(effects) != 0 {
		t.Fatalf("terminated session processed a location fix")
	}
	if effects := sess.HandleRegionEvent(models.RegionEvent{RegionID: "visit-1", Type: models.RegionEnter}); len(effects) != 0 {
		t.Fatalf("terminated session processed a region event")
	}
}

func TestRegionEventsDrivePolicy(t *testing.T) {
	sess := newTestSession(models.Coordinate{Latitude: 50, Longitude: 50})

	// 进入围栏 ⇒ 最高精度策略
	effects := sess.HandleRegionEvent(models.RegionEvent{RegionID: "visit-1", Type: models.RegionEnter})
	if len(effects) != 1 {
		t.Fatalf("expected policy effect on enter, got %+v", effects)
	}
	if pol := effects[0].(ApplyPolicyEffect); pol.Policy != PolicyFor(PolicyInside) {
		t.Fatalf("unexpected enter policy: %+v", pol.Policy)
	}

	// 退出围栏 ⇒ 粗精度策略
	effects = sess.HandleRegionEvent(models.RegionEvent{RegionID: "visit-1", Type: models.RegionExit})
	if len(effects) != 1 {
		t.Fatalf("expected policy effect on exit, got %+v", effects)
	}
	if pol := effects[0].(ApplyPolicyEffect); pol.Policy != PolicyFor(PolicyOutside) {
		t.Fatalf("unexpected exit policy: %+v", pol.Policy)
	}

	// 无关 region 被忽略
	if effects := sess.HandleRegionEvent(models.RegionEvent{RegionID: "other", Type: models.RegionEnter}); len(effects) != 0 {
		t.Fatalf("foreign region event processed")
	}
}

func TestRegionExitAfterCheckInKeepsPolicy(t *testing.T) {
	sess := newTestSession(models.Coordinate{})
	now := time.Now()

	sess.HandleRegionEvent(models.RegionEvent{RegionID: "visit-1", Type: models.RegionEnter})
	sess.HandleLocation(sample(0, 0.0005, 10, now)) // 签到

	// 已签到：围栏退出只记录，不产生策略变化
	effects := sess.HandleRegionEvent(models.RegionEvent{RegionID: "visit-1", Type: models.RegionExit})
	if len(effects) != 0 {
		t.Fatalf("exit after check-in changed policy: %+v", effects)
	}

	if sess.policyState() != PolicyCheckedIn {
		t.Fatalf("policy state not terminal after check-in")
	}
}

// policyState 测试辅助：加锁读取策略输入状态
func (s *Session) policyState() PolicyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policyStateLocked()
}

func TestSnapshotReflectsTermination(t *testing.T) {
	sess := newTestSession(models.Coordinate{Latitude: 50, Longitude: 50})
	sess.Stop()

	snap := sess.Snapshot()
	if snap.CurrentState != state.StateTerminated {
		t.Fatalf("expected terminated snapshot, got %s", snap.CurrentState)
	}
}
