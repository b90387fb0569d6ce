package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/trailgazer/internal/models"
)

// VisitRepository 访问会话记录仓库
type VisitRepository struct {
	db *DB
}

// NewVisitRepository 创建访问仓库
func NewVisitRepository(db *DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// CreateSession 创建会话开始记录
func (r *VisitRepository) CreateSession(ctx context.Context, visit *models.Visit) error {
	query := `
		INSERT INTO visits (visit_id, session_id, recipient_id, destination_lat, destination_lng, destination_address, started_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		visit.VisitID,
		visit.SessionID,
		visit.RecipientID,
		visit.DestinationLat,
		visit.DestinationLng,
		visit.DestinationAddress,
		visit.StartedAt,
		visit.IsActive,
	).Scan(&visit.ID)

	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// RecordCheckIn 合并写入签到信息（时间、位置、签到时距离）
func (r *VisitRepository) RecordCheckIn(ctx context.Context, visitID string, at time.Time, lat, lng, distanceM float64) error {
	query := `
		UPDATE visits
		SET checked_in_at = $2, checkin_lat = $3, checkin_lng = $4, checkin_distance_m = $5
		WHERE visit_id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, visitID, at, lat, lng, distanceM)
	if err != nil {
		return fmt.Errorf("record check-in: %w", err)
	}
	return nil
}

// RecordETANotice 合并写入 ETA 提醒信息
func (r *VisitRepository) RecordETANotice(ctx context.Context, visitID string, at time.Time, minutes float64) error {
	query := `
		UPDATE visits
		SET eta_notice_at = $2, eta_minutes = $3
		WHERE visit_id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, visitID, at, minutes)
	if err != nil {
		return fmt.Errorf("record eta notice: %w", err)
	}
	return nil
}

// Finalize 写入会话结束记录：结束时间、失活标志、总距离、轨迹点数
func (r *VisitRepository) Finalize(ctx context.Context, visitID string, endedAt time.Time, totalDistanceM float64, pointCount int) error {
	query := `
		UPDATE visits
		SET ended_at = $2, is_active = false, total_distance_m = $3, point_count = $4
		WHERE visit_id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, visitID, endedAt, totalDistanceM, pointCount)
	if err != nil {
		return fmt.Errorf("finalize visit: %w", err)
	}
	return nil
}

// GetByVisitID 按访问 ID 读取记录
func (r *VisitRepository) GetByVisitID(ctx context.Context, visitID string) (*models.Visit, error) {
	query := `
		SELECT id, visit_id, session_id, recipient_id, destination_lat, destination_lng, destination_address, started_at, ended_at, is_active, checked_in_at, checkin_lat, checkin_lng, checkin_distance_m, eta_notice_at, eta_minutes, total_distance_m, point_count
		FROM visits WHERE visit_id = $1
	`
	visit := &models.Visit{}
	err := r.db.Pool.QueryRow(ctx, query, visitID).Scan(
		&visit.ID,
		&visit.VisitID,
		&visit.SessionID,
		&visit.RecipientID,
		&visit.DestinationLat,
		&visit.DestinationLng,
		&visit.DestinationAddress,
		&visit.StartedAt,
		&visit.EndedAt,
		&visit.IsActive,
		&visit.CheckedInAt,
		&visit.CheckinLat,
		&visit.CheckinLng,
		&visit.CheckinDistanceM,
		&visit.ETANoticeAt,
		&visit.ETAMinutes,
		&visit.TotalDistanceM,
		&visit.PointCount,
	)
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return visit, nil
}

// ListRecent 按开始时间倒序列出最近的访问
func (r *VisitRepository) ListRecent(ctx context.Context, limit int) ([]*models.Visit, error) {
	query := `
		SELECT id, visit_id, session_id, recipient_id, destination_lat, destination_lng, destination_address, started_at, ended_at, is_active, checked_in_at, checkin_lat, checkin_lng, checkin_distance_m, eta_notice_at, eta_minutes, total_distance_m, point_count
		FROM visits ORDER BY started_at DESC LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var visits []*models.Visit
	for rows.Next() {
		visit := &models.Visit{}
		err := rows.Scan(
			&visit.ID,
			&visit.VisitID,
			&visit.SessionID,
			&visit.RecipientID,
			&visit.DestinationLat,
			&visit.DestinationLng,
			&visit.DestinationAddress,
			&visit.StartedAt,
			&visit.EndedAt,
			&visit.IsActive,
			&visit.CheckedInAt,
			&visit.CheckinLat,
			&visit.CheckinLng,
			&visit.CheckinDistanceM,
			&visit.ETANoticeAt,
			&visit.ETAMinutes,
			&visit.TotalDistanceM,
			&visit.PointCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, visit)
	}

	return visits, nil
}
