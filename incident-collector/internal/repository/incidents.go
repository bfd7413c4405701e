package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/models"

	"go.uber.org/zap"
)

// ErrNotFound 事故不存在
var ErrNotFound = errors.New("incident not found")

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
	id           UUID PRIMARY KEY,
	occurred_at  TIMESTAMPTZ NOT NULL,
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	photo_count  INTEGER NOT NULL DEFAULT 0,
	audio_bytes  BIGINT NOT NULL DEFAULT 0,
	storage_path TEXT NOT NULL,
	maps_link    TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_incidents_occurred_at ON incidents (occurred_at DESC);
`

// IncidentRepository 事故仓库
type IncidentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIncidentRepository 创建事故仓库
func NewIncidentRepository(db *sql.DB, logger *zap.Logger) *IncidentRepository {
	return &IncidentRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema 建表（幂等）
func (r *IncidentRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure incidents schema: %w", err)
	}
	return nil
}

// Create 插入事故，ID 已存在时返回 false
func (r *IncidentRepository) Create(ctx context.Context, inc *models.Incident) (bool, error) {
	query := `
		INSERT INTO incidents (
			id, occurred_at, latitude, longitude, photo_count,
			audio_bytes, storage_path, maps_link
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		inc.ID,
		inc.OccurredAt,
		inc.Latitude,
		inc.Longitude,
		inc.PhotoCount,
		inc.AudioBytes,
		inc.StoragePath,
		inc.MapsLink,
	).Scan(&inc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert incident: %w", err)
	}

	r.logger.Debug("Incident inserted", zap.String("incident_id", inc.ID))
	return true, nil
}

// Get 按 ID 查询
func (r *IncidentRepository) Get(ctx context.Context, id string) (*models.Incident, error) {
	query := `
		SELECT
			id::text, occurred_at, latitude, longitude, photo_count,
			audio_bytes, storage_path, maps_link, created_at
		FROM incidents
		WHERE id = $1
	`

	inc, err := scanIncident(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return inc, nil
}

// List 按发生时间倒序返回最近的事故
func (r *IncidentRepository) List(ctx context.Context, limit int) ([]*models.Incident, error) {
	query := `
		SELECT
			id::text, occurred_at, latitude, longitude, photo_count,
			audio_bytes, storage_path, maps_link, created_at
		FROM incidents
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0, limit)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate incidents: %w", err)
	}
	return incidents, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var inc models.Incident
	err := row.Scan(
		&inc.ID,
		&inc.OccurredAt,
		&inc.Latitude,
		&inc.Longitude,
		&inc.PhotoCount,
		&inc.AudioBytes,
		&inc.StoragePath,
		&inc.MapsLink,
		&inc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}
