package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/langchou/trailgazer/internal/config"
	"github.com/langchou/trailgazer/internal/geo"
	"github.com/langchou/trailgazer/internal/models"
	"github.com/langchou/trailgazer/internal/state"
)

var (
	// ErrSessionActive 已有活跃会话，start 被守卫拒绝（不做静默替换）
	ErrSessionActive = errors.New("tracking session already active")
	// ErrDestinationNotFound 目的地地址无法解析
	ErrDestinationNotFound = errors.New("destination not found")
	// ErrVisitNotFound 访问记录不存在
	ErrVisitNotFound = errors.New("visit not found")
)

// Geocoder 地址解析协作方
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Coordinate, *models.Address, error)
}

// VisitStore 访问会话记录的持久化协作方（追加/合并写）
type VisitStore interface {
	CreateSession(ctx context.Context, visit *models.Visit) error
	RecordCheckIn(ctx context.Context, visitID string, at time.Time, lat, lng, distanceM float64) error
	RecordETANotice(ctx context.Context, visitID string, at time.Time, minutes float64) error
	Finalize(ctx context.Context, visitID string, endedAt time.Time, totalDistanceM float64, pointCount int) error
	GetByVisitID(ctx context.Context, visitID string) (*models.Visit, error)
}

// RouteStore 轨迹点的持久化协作方
type RouteStore interface {
	Append(ctx context.Context, point *models.RoutePoint) error
	ListByVisitID(ctx context.Context, visitID string) ([]*models.RoutePoint, error)
}

// Notifier 通知分发协作方（fire-and-forget，失败只记日志）
type Notifier interface {
	NotifyCheckIn(ctx context.Context, recipientID, visitID string, at time.Time) error
	NotifyETA(ctx context.Context, recipientID, visitID string, minutes float64) error
}

// Provider 定位/围栏提供方的出站命令通道
// 会话从不直接触碰提供方，策略和围栏命令统一由服务代为下发
type Provider interface {
	ApplyPolicy(policy AccuracyPolicy)
	RegisterRegion(visitID string, center models.Coordinate, radiusM float64) error
	UnregisterRegion(visitID string) error
	StopUpdates()
}

// TrackingService 访问跟踪服务（公开门面）
// 持有至多一个活跃会话，负责把提供方事件转进会话、把会话产出的
// 副作用命令交给异步 worker 执行
type TrackingService struct {
	cfg      *config.Config
	logger   *zap.Logger
	geocoder Geocoder
	visits   VisitStore
	routes   RouteStore
	notifier Notifier
	provider Provider

	mu          sync.RWMutex
	session     *Session
	subscribers []chan *state.SessionState

	effectCh chan Effect
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewTrackingService 创建跟踪服务并启动副作用 worker
func NewTrackingService(
	cfg *config.Config,
	logger *zap.Logger,
	geocoder Geocoder,
	visits VisitStore,
	routes RouteStore,
	notifier Notifier,
	provider Provider,
) *TrackingService {
	s := &TrackingService{
		cfg:      cfg,
		logger:   logger,
		geocoder: geocoder,
		visits:   visits,
		routes:   routes,
		notifier: notifier,
		provider: provider,
		effectCh: make(chan Effect, 256),
		stopCh:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.effectLoop()

	return s
}

// Close 关闭服务，排空未执行的副作用命令
func (s *TrackingService) Close() {
	close(s.stopCh)
	s.wg.Wait()
}

// StartVisit 启动一次访问跟踪
// 地理编码是调用方唯一需要同步等待的操作：解析失败时会话完全不会被创建
func (s *TrackingService) StartVisit(ctx context.Context, visitID, destinationAddress, recipientID string) error {
	s.mu.Lock()
	if s.session != nil && s.session.IsActive() {
		s.mu.Unlock()
		return fmt.Errorf("start visit %s: %w", visitID, ErrSessionActive)
	}
	s.mu.Unlock()

	coord, addr, err := s.geocoder.Geocode(ctx, destinationAddress)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", destinationAddress, ErrDestinationNotFound)
	}

	sessionID := uuid.NewString()
	sess := newSession(s.cfg, s.logger, visitID, sessionID, recipientID, coord, s.onStateChange)

	s.mu.Lock()
	// 地理编码期间可能有并发 start 抢先，再查一次守卫
	if s.session != nil && s.session.IsActive() {
		s.mu.Unlock()
		return fmt.Errorf("start visit %s: %w", visitID, ErrSessionActive)
	}
	s.session = sess
	s.mu.Unlock()

	effects := sess.Start()

	// 会话开始记录与其他副作用一样异步落库
	s.dispatch(PersistSessionStartEffect{Visit: &models.Visit{
		VisitID:            visitID,
		SessionID:          sessionID,
		RecipientID:        recipientID,
		DestinationLat:     coord.Latitude,
		DestinationLng:     coord.Longitude,
		DestinationAddress: addr,
		StartedAt:          time.Now(),
		IsActive:           true,
	}})
	s.dispatch(effects...)

	s.logger.Info("Visit tracking started",
		zap.String("visit_id", visitID),
		zap.String("session_id", sessionID),
		zap.Float64("destination_lat", coord.Latitude),
		zap.Float64("destination_lng", coord.Longitude))

	s.publishState()
	return nil
}

// StopVisit 结束当前访问跟踪（幂等，没有活跃会话时是 no-op）
func (s *TrackingService) StopVisit(ctx context.Context) error {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if sess == nil {
		return nil
	}

	s.dispatch(sess.Stop()...)
	s.publishState()
	return nil
}

// HandleLocation 转发一个原始位置样本到活跃会话
func (s *TrackingService) HandleLocation(sample models.LocationSample) {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if sess == nil {
		s.logger.Debug("Location fix with no session, dropped")
		return
	}

	s.dispatch(sess.HandleLocation(sample)...)
	s.publishState()
}

// HandleRegionEvent 转发一个围栏进出事件到活跃会话
func (s *TrackingService) HandleRegionEvent(ev models.RegionEvent) {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if sess == nil {
		s.logger.Debug("Region event with no session, dropped", zap.String("region_id", ev.RegionID))
		return
	}

	s.dispatch(sess.HandleRegionEvent(ev)...)
	s.publishState()
}

// HandleProviderError 处理提供方上报的错误
// 权限被收回对会话是致命的：强制 stop；其余错误记日志后降级继续
func (s *TrackingService) HandleProviderError(ctx context.Context, kind string, message string) {
	switch kind {
	case "permission_denied", "permission_restricted":
		s.logger.Warn("Location permission revoked, forcing stop",
			zap.String("kind", kind),
			zap.String("message", message))
		if err := s.StopVisit(ctx); err != nil {
			s.logger.Error("Forced stop failed", zap.Error(err))
		}
	default:
		s.logger.Warn("Transient provider error, tracking continues degraded",
			zap.String("kind", kind),
			zap.String("message", message))
	}
}

// GetState 获取当前会话的实时状态快照
func (s *TrackingService) GetState() (*state.SessionState, bool) {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if sess == nil {
		return nil, false
	}
	return sess.Snapshot(), true
}

// Subscribe 订阅实时状态更新
func (s *TrackingService) Subscribe() <-chan *state.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *state.SessionState, 10)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// RouteStatistics 按需从持久化记录计算轨迹统计（不读会话内存）
func (s *TrackingService) RouteStatistics(ctx context.Context, visitID string) (*models.RouteStatistics, error) {
	visit, err := s.visits.GetByVisitID(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("get visit %s: %w", visitID, err)
	}

	points, err := s.routes.ListByVisitID(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("list route points %s: %w", visitID, err)
	}

	stats := &models.RouteStatistics{
		VisitID:      visitID,
		PointCount:   len(points),
		HasCheckedIn: visit.HasCheckedIn(),
	}
	for i := 1; i < len(points); i++ {
		stats.TotalDistanceM += geo.Distance(
			models.Coordinate{Latitude: points[i-1].Latitude, Longitude: points[i-1].Longitude},
			models.Coordinate{Latitude: points[i].Latitude, Longitude: points[i].Longitude},
		)
	}
	return stats, nil
}

// RouteHistory 读取访问的有序轨迹点
func (s *TrackingService) RouteHistory(ctx context.Context, visitID string) ([]*models.RoutePoint, error) {
	points, err := s.routes.ListByVisitID(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("list route points %s: %w", visitID, err)
	}
	return points, nil
}

// onStateChange 会话状态机转换回调（仅记日志，发布由事件入口统一做）
func (s *TrackingService) onStateChange(visitID, from, to string) {
	s.logger.Info("Session state changed",
		zap.String("visit_id", visitID),
		zap.String("from", from),
		zap.String("to", to))
}

// dispatch 把副作用命令交给 worker，队列满时丢弃并告警
// 持久化/通知永远不能阻塞事件处理路径
func (s *TrackingService) dispatch(effects ...Effect) {
	for _, e := range effects {
		select {
		case s.effectCh <- e:
		default:
			s.logger.Warn("Effect queue full, dropping effect", zap.Any("effect", e))
		}
	}
}

// publishState 把最新快照推给订阅者（非阻塞）
func (s *TrackingService) publishState() {
	snap, ok := s.GetState()
	if !ok {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// 慢消费者直接跳过
		}
	}
}

// effectLoop 副作用 worker：串行执行状态机产出的命令
// 任何一条命令失败都只记日志，不重试、不回滚会话状态
func (s *TrackingService) effectLoop() {
	defer s.wg.Done()

	for {
		select {
		case e := <-s.effectCh:
			s.execute(e)
		case <-s.stopCh:
			// 排空剩余命令后退出
			for {
				select {
				case e := <-s.effectCh:
					s.execute(e)
				default:
					return
				}
			}
		}
	}
}

// execute 执行单条副作用命令
func (s *TrackingService) execute(e Effect) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch eff := e.(type) {
	case ApplyPolicyEffect:
		s.provider.ApplyPolicy(eff.Policy)

	case RegisterRegionEffect:
		if err := s.provider.RegisterRegion(eff.VisitID, eff.Center, eff.RadiusM); err != nil {
			// 围栏注册失败不致命：签到只依赖距离判定
			s.logger.Warn("Region registration failed, tracking continues on distance only",
				zap.String("visit_id", eff.VisitID), zap.Error(err))
			if sess := s.currentSession(); sess != nil {
				sess.MarkRegionRegistered(false)
			}
		} else if sess := s.currentSession(); sess != nil {
			sess.MarkRegionRegistered(true)
		}

	case UnregisterRegionEffect:
		if err := s.provider.UnregisterRegion(eff.VisitID); err != nil {
			s.logger.Warn("Region unregistration failed", zap.String("visit_id", eff.VisitID), zap.Error(err))
		}

	case StopUpdatesEffect:
		s.provider.StopUpdates()

	case PersistSessionStartEffect:
		if err := s.visits.CreateSession(ctx, eff.Visit); err != nil {
			s.logger.Error("Failed to persist session start", zap.String("visit_id", eff.Visit.VisitID), zap.Error(err))
		}

	case PersistRoutePointEffect:
		point := eff.Point
		if err := s.routes.Append(ctx, &point); err != nil {
			s.logger.Error("Failed to persist route point", zap.String("visit_id", point.VisitID), zap.Error(err))
		}

	case PersistCheckInEffect:
		if err := s.visits.RecordCheckIn(ctx, eff.VisitID, eff.At, eff.Latitude, eff.Longitude, eff.DistanceM); err != nil {
			s.logger.Error("Failed to persist check-in", zap.String("visit_id", eff.VisitID), zap.Error(err))
		}

	case PersistETANoticeEffect:
		if err := s.visits.RecordETANotice(ctx, eff.VisitID, eff.At, eff.Minutes); err != nil {
			s.logger.Error("Failed to persist eta notice", zap.String("visit_id", eff.VisitID), zap.Error(err))
		}

	case FinalizeEffect:
		if err := s.visits.Finalize(ctx, eff.VisitID, eff.EndedAt, eff.TotalDistanceM, eff.PointCount); err != nil {
			s.logger.Error("Failed to persist session finalize", zap.String("visit_id", eff.VisitID), zap.Error(err))
		}

	case NotifyCheckInEffect:
		if err := s.notifier.NotifyCheckIn(ctx, eff.RecipientID, eff.VisitID, eff.At); err != nil {
			s.logger.Error("Failed to send check-in notification", zap.String("visit_id", eff.VisitID), zap.Error(err))
		}

	case NotifyETAEffect:
		if err := s.notifier.NotifyETA(ctx, eff.RecipientID, eff.VisitID, eff.Minutes); err != nil {
			s.logger.Error("Failed to send eta notification", zap.String("visit_id", eff.VisitID), zap.Error(err))
		}
	}
}

// currentSession 读取当前会话指针
func (s *TrackingService) currentSession() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}
