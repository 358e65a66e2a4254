package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Camera is one registered video source feeding the detection pipeline.
type Camera struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Channel   int       `json:"channel"`
	IsEnabled bool      `json:"is_enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CameraModel struct {
	DB DBTX
}

// Create inserts a new camera and reads back the DB-assigned fields.
func (m CameraModel) Create(ctx context.Context, c *Camera) error {
	query := `
		INSERT INTO cameras (name, location, channel, is_enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := m.DB.QueryRowContext(ctx, query,
		c.Name, c.Location, c.Channel, c.IsEnabled,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return classifyStorageErr(err)
	}
	return nil
}

func (m CameraModel) GetByID(ctx context.Context, id uuid.UUID) (*Camera, error) {
	query := `
		SELECT id, name, location, channel, is_enabled, created_at, updated_at
		FROM cameras
		WHERE id = $1`

	var c Camera
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Location, &c.Channel, &c.IsEnabled, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	return &c, nil
}

func (m CameraModel) List(ctx context.Context) ([]Camera, error) {
	query := `
		SELECT id, name, location, channel, is_enabled, created_at, updated_at
		FROM cameras
		ORDER BY channel, name`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer rows.Close()

	var cameras []Camera
	for rows.Next() {
		var c Camera
		if err := rows.Scan(&c.ID, &c.Name, &c.Location, &c.Channel, &c.IsEnabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		cameras = append(cameras, c)
	}
	return cameras, rows.Err()
}

// SetEnabled flips the ingest flag. Disabled cameras are rejected at the push
// endpoint, not in the pipeline.
func (m CameraModel) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `
		UPDATE cameras SET is_enabled = $1, updated_at = NOW()
		WHERE id = $2`

	res, err := m.DB.ExecContext(ctx, query, enabled, id)
	if err != nil {
		return classifyStorageErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
