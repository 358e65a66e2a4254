package data_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternlabs/lantern/internal/data"
)

func TestCameraCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := data.CameraModel{DB: db}

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery("INSERT INTO cameras").
		WithArgs("Main Gate", "main_entrance", 4, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, now, now))

	c := &data.Camera{Name: "Main Gate", Location: "main_entrance", Channel: 4, IsEnabled: true}
	require.NoError(t, m.Create(context.Background(), c))
	assert.Equal(t, id, c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCameraGetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := data.CameraModel{DB: db}

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM cameras").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "location", "channel", "is_enabled", "created_at", "updated_at"}))

	_, err = m.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, data.ErrRecordNotFound)
}

func TestCameraSetEnabled_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := data.CameraModel{DB: db}

	id := uuid.New()
	mock.ExpectExec("UPDATE cameras SET is_enabled").
		WithArgs(false, id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = m.SetEnabled(context.Background(), id, false)
	assert.ErrorIs(t, err, data.ErrRecordNotFound)
}
