package repository

import (
	"context"
	"fmt"

	"github.com/langchou/trailgazer/internal/models"
)

// RoutePointRepository 轨迹点数据仓库
type RoutePointRepository struct {
	db *DB
}

// NewRoutePointRepository 创建轨迹点仓库
func NewRoutePointRepository(db *DB) *RoutePointRepository {
	return &RoutePointRepository{db: db}
}

// Append 追加一个轨迹点
func (r *RoutePointRepository) Append(ctx context.Context, point *models.RoutePoint) error {
	query := `
		INSERT INTO route_points (visit_id, latitude, longitude, altitude_m, horizontal_accuracy_m, speed_mps, course, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		point.VisitID,
		point.Latitude,
		point.Longitude,
		point.AltitudeM,
		point.HorizontalAccuracyM,
		point.SpeedMps,
		point.Course,
		point.RecordedAt,
	).Scan(&point.ID)

	if err != nil {
		return fmt.Errorf("insert route point: %w", err)
	}
	return nil
}

// ListByVisitID 按记录时间升序读取访问的全部轨迹点
func (r *RoutePointRepository) ListByVisitID(ctx context.Context, visitID string) ([]*models.RoutePoint, error) {
	query := `
		SELECT id, visit_id, latitude, longitude, altitude_m, horizontal_accuracy_m, speed_mps, course, recorded_at
		FROM route_points WHERE visit_id = $1 ORDER BY recorded_at
	`
	rows, err := r.db.Pool.Query(ctx, query, visitID)
	if err != nil {
		return nil, fmt.Errorf("list route points: %w", err)
	}
	defer rows.Close()

	var points []*models.RoutePoint
	for rows.Next() {
		point := &models.RoutePoint{}
		err := rows.Scan(
			&point.ID,
			&point.VisitID,
			&point.Latitude,
			&point.Longitude,
			&point.AltitudeM,
			&point.HorizontalAccuracyM,
			&point.SpeedMps,
			&point.Course,
			&point.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan route point: %w", err)
		}
		points = append(points, point)
	}

	return points, nil
}

// CountByVisitID 统计访问的轨迹点数量
func (r *RoutePointRepository) CountByVisitID(ctx context.Context, visitID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM route_points WHERE visit_id = $1`, visitID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count route points: %w", err)
	}
	return count, nil
}
