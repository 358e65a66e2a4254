package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BoundingBox is the detector's pixel-space box for one object.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Detection is one recognized object in one processed frame. Immutable once
// built; the ingest pipeline moves it by value.
type Detection struct {
	ID          int64       `json:"id,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	CameraID    uuid.UUID   `json:"camera_id"`
	Location    string      `json:"location,omitempty"`
	ObjectClass string      `json:"object_class"`
	Confidence  float64     `json:"confidence"`
	Box         BoundingBox `json:"bounding_box"`
}

// Validate enforces the persisted contract before a record enters the pipeline.
func (d Detection) Validate() error {
	if d.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if d.CameraID == uuid.Nil {
		return errors.New("camera_id is required")
	}
	if d.ObjectClass == "" {
		return errors.New("object_class is required")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", d.Confidence)
	}
	if d.Box.X1 > d.Box.X2 || d.Box.Y1 > d.Box.Y2 {
		return errors.New("bounding box corners inverted")
	}
	return nil
}

// CameraCount is a per-camera aggregate row.
type CameraCount struct {
	CameraID uuid.UUID `json:"camera_id"`
	Count    int64     `json:"count"`
}

// HourlyCount is an hour-of-day aggregate row.
type HourlyCount struct {
	Hour     int    `json:"hour"`
	Location string `json:"location"`
	Count    int64  `json:"count"`
}

// LocationCount is a per-location aggregate row.
type LocationCount struct {
	Location string  `json:"location"`
	Count    int64   `json:"count"`
	AvgConf  float64 `json:"avg_confidence"`
}

// DetectionModel owns the durable detection log. AppendBatch needs a real
// *sql.DB (not DBTX) because it opens its own transaction.
type DetectionModel struct {
	DB *sql.DB
}

// AppendBatch persists the whole batch in one transaction. Either every record
// becomes visible or none does; a partial batch would corrupt the nightly
// count. Errors are classified into ErrStorageUnavailable / ErrStorageRejected.
func (m DetectionModel) AppendBatch(ctx context.Context, batch []Detection) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return classifyStorageErr(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO detections (ts, camera_id, location, object_class, confidence, x1, y1, x2, y2)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return classifyStorageErr(err)
	}
	defer stmt.Close()

	for _, d := range batch {
		_, err := stmt.ExecContext(ctx,
			d.Timestamp.UTC(), d.CameraID, d.Location, d.ObjectClass, d.Confidence,
			d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2,
		)
		if err != nil {
			return classifyStorageErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyStorageErr(err)
	}
	return nil
}

// QueryWindow counts records of one class in the half-open interval
// [start, end). Safe under concurrent appends: the count is one consistent
// read, boundary-equal-to-end records are excluded.
func (m DetectionModel) QueryWindow(ctx context.Context, objectClass string, start, end time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM detections
		WHERE object_class = $1 AND ts >= $2 AND ts < $3`

	var count int64
	err := m.DB.QueryRowContext(ctx, query, objectClass, start.UTC(), end.UTC()).Scan(&count)
	if err != nil {
		return 0, classifyStorageErr(err)
	}
	return count, nil
}

// CountByCamera returns detection counts per camera since the given instant.
func (m DetectionModel) CountByCamera(ctx context.Context, since time.Time) ([]CameraCount, error) {
	query := `
		SELECT camera_id, COUNT(*) AS cnt FROM detections
		WHERE ts >= $1
		GROUP BY camera_id
		ORDER BY cnt DESC`

	rows, err := m.DB.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer rows.Close()

	var out []CameraCount
	for rows.Next() {
		var c CameraCount
		if err := rows.Scan(&c.CameraID, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HourlyCounts aggregates the interval [start, end) by hour of day and
// location, busiest hours first within the hour ordering.
func (m DetectionModel) HourlyCounts(ctx context.Context, start, end time.Time) ([]HourlyCount, error) {
	query := `
		SELECT EXTRACT(HOUR FROM ts)::int AS hour, location, COUNT(*) AS cnt
		FROM detections
		WHERE ts >= $1 AND ts < $2
		GROUP BY hour, location
		ORDER BY hour, cnt DESC`

	rows, err := m.DB.QueryContext(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer rows.Close()

	var out []HourlyCount
	for rows.Next() {
		var h HourlyCount
		if err := rows.Scan(&h.Hour, &h.Location, &h.Count); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// TopLocations returns the n busiest locations in [start, end).
func (m DetectionModel) TopLocations(ctx context.Context, start, end time.Time, n int) ([]LocationCount, error) {
	query := `
		SELECT location, COUNT(*) AS cnt, AVG(confidence) AS avg_conf
		FROM detections
		WHERE ts >= $1 AND ts < $2
		GROUP BY location
		ORDER BY cnt DESC
		LIMIT $3`

	rows, err := m.DB.QueryContext(ctx, query, start.UTC(), end.UTC(), n)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer rows.Close()

	var out []LocationCount
	for rows.Next() {
		var l LocationCount
		if err := rows.Scan(&l.Location, &l.Count, &l.AvgConf); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
