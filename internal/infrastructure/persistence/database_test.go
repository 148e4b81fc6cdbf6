package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/photocatalog/backend/internal/domain/catalog"
	"github.com/photocatalog/backend/internal/domain/reservation"
	"github.com/photocatalog/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newMockGorm returns a GORM handle backed by sqlmock using the postgres dialect
func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

// newSQLiteDB returns an in-memory database migrated for models
func newSQLiteDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models...))
	return db
}

// seedEntries inserts catalog rows the way upstream ingestion would
func seedEntries(t *testing.T, db *gorm.DB, entries ...*catalog.Entry) {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, db.Create(e).Error)
	}
}

// seedReservation inserts a cart reservation the way the ordering subsystem would
func seedReservation(t *testing.T, db *gorm.DB, holderID string, active bool, fileNames ...string) *reservation.ActiveReservation {
	t.Helper()
	r := &reservation.ActiveReservation{
		BaseEntity: shared.NewBaseEntity(),
		HolderID:   holderID,
		IsActive:   active,
	}
	for _, name := range fileNames {
		r.Items = append(r.Items, reservation.Item{BaseEntity: shared.NewBaseEntity(), ReservationID: r.ID, FileName: name})
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

func loadEntry(t *testing.T, db *gorm.DB, id uuid.UUID) *catalog.Entry {
	t.Helper()
	e, err := findEntry(db, id)
	require.NoError(t, err)
	return e
}

func TestDatabase_Ping(t *testing.T) {
	gormDB, mock, mockDB := newMockGorm(t)
	defer mockDB.Close()

	db := &Database{DB: gormDB}

	mock.ExpectPing()
	require.NoError(t, db.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(assert.AnError)
	require.ErrorIs(t, db.Ping(context.Background()), assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Stats(t *testing.T) {
	gormDB, _, mockDB := newMockGorm(t)
	defer mockDB.Close()

	mockDB.SetMaxOpenConns(7)
	stats, err := (&Database{DB: gormDB}).Stats()

	require.NoError(t, err)
	assert.Equal(t, 7, stats.MaxOpenConnections)
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
}

func TestDatabase_Close(t *testing.T) {
	gormDB, mock, _ := newMockGorm(t)

	mock.ExpectClose()
	require.NoError(t, (&Database{DB: gormDB}).Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
