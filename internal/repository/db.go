package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool 连接池操作接口（测试时替换为 pgxmock）
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// DB 数据库连接池封装
type DB struct {
	Pool PgxPool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateVisits,
		migrationCreateRoutePoints,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
// "尚未发生"的字段（签到、ETA 提醒、结束时间）保持 NULL，落库后能原样读回
const migrationCreateVisits = `
CREATE TABLE IF NOT EXISTS visits (
    id BIGSERIAL PRIMARY KEY,
    visit_id VARCHAR(64) NOT NULL UNIQUE,
    session_id VARCHAR(64) NOT NULL,
    recipient_id VARCHAR(64) NOT NULL,
    destination_lat DOUBLE PRECISION NOT NULL,
    destination_lng DOUBLE PRECISION NOT NULL,
    destination_address JSONB,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    ended_at TIMESTAMP WITH TIME ZONE,
    is_active BOOLEAN NOT NULL DEFAULT true,
    checked_in_at TIMESTAMP WITH TIME ZONE,
    checkin_lat DOUBLE PRECISION,
    checkin_lng DOUBLE PRECISION,
    checkin_distance_m DOUBLE PRECISION,
    eta_notice_at TIMESTAMP WITH TIME ZONE,
    eta_minutes DOUBLE PRECISION,
    total_distance_m DOUBLE PRECISION DEFAULT 0,
    point_count INT DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_visits_visit_id ON visits(visit_id);
CREATE INDEX IF NOT EXISTS idx_visits_started_at ON visits(started_at);
`

const migrationCreateRoutePoints = `
CREATE TABLE IF NOT EXISTS route_points (
    id BIGSERIAL PRIMARY KEY,
    visit_id VARCHAR(64) NOT NULL,
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    altitude_m DOUBLE PRECISION,
    horizontal_accuracy_m DOUBLE PRECISION,
    speed_mps DOUBLE PRECISION,
    course DOUBLE PRECISION,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_route_points_visit_id ON route_points(visit_id);
CREATE INDEX IF NOT EXISTS idx_route_points_recorded_at ON route_points(recorded_at);
`
