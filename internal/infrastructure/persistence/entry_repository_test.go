package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/photocatalog/backend/internal/domain/catalog"
	"github.com/photocatalog/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntryRepo(t *testing.T) *GormEntryRepository {
	return NewGormEntryRepository(newSQLiteDB(t, &catalog.Entry{}))
}

func entryWithID(id, externalKey, fileName string) *catalog.Entry {
	e := catalog.NewEntry(externalKey, fileName)
	e.ID = uuid.MustParse(id)
	return e
}

func soldPatch(at time.Time) *catalog.StatusPatch {
	return &catalog.StatusPatch{Availability: catalog.AvailabilitySold, MirroredStatus: "RETIRADO", SyncedAt: at}
}

func TestGormEntryRepository_FindByKey(t *testing.T) {
	repo := newEntryRepo(t)
	ctx := context.Background()

	later := entryWithID("00000000-0000-0000-0000-000000000002", "00123", "00123.webp")
	first := entryWithID("00000000-0000-0000-0000-000000000001", "00123", "dup.webp")
	seedEntries(t, repo.db, later)
	seedEntries(t, repo.db, first)

	t.Run("duplicate keys resolve to lowest id", func(t *testing.T) {
		got, err := repo.FindByKey(ctx, catalog.LookupKey{Field: catalog.LookupByExternalKey, Value: "00123"})
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("by file name", func(t *testing.T) {
		got, err := repo.FindByKey(ctx, catalog.LookupKey{Field: catalog.LookupByFileName, Value: "00123.webp"})
		require.NoError(t, err)
		assert.Equal(t, later.ID, got.ID)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := repo.FindByKey(ctx, catalog.LookupKey{Field: catalog.LookupByExternalKey, Value: "999"})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		_, err := repo.FindByKey(ctx, catalog.LookupKey{Field: "id; DROP TABLE", Value: "x"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestFindEntry(t *testing.T) {
	repo := newEntryRepo(t)

	e := catalog.NewEntry("1", "1.webp")
	seedEntries(t, repo.db, e)

	got, err := findEntry(repo.db, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.webp", got.FileName)

	_, err = findEntry(repo.db, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormEntryRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("writes all three status fields and bumps version", func(t *testing.T) {
		repo := newEntryRepo(t)
		e := catalog.NewEntry("00042", "00042.webp")
		seedEntries(t, repo.db, e)

		updated, written, err := repo.UpdateStatus(ctx, e.ID, func(current *catalog.Entry) (*catalog.StatusPatch, error) {
			return soldPatch(now), nil
		})
		require.NoError(t, err)
		assert.True(t, written)
		assert.Equal(t, 2, updated.Version)

		stored := loadEntry(t, repo.db, e.ID)
		assert.Equal(t, "sold", stored.AvailabilityStatus)
		assert.Equal(t, "sold", stored.DisplayStatus)
		assert.Equal(t, "RETIRADO", stored.MirroredExternalStatus)
		require.NotNil(t, stored.LastSyncedAt)
		assert.True(t, now.Equal(*stored.LastSyncedAt))
		assert.Equal(t, 2, stored.Version)
	})

	t.Run("nil patch writes nothing", func(t *testing.T) {
		repo := newEntryRepo(t)
		e := catalog.NewEntry("7", "7.webp")
		seedEntries(t, repo.db, e)

		got, written, err := repo.UpdateStatus(ctx, e.ID, func(*catalog.Entry) (*catalog.StatusPatch, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.False(t, written)
		assert.Equal(t, 1, got.Version)
	})

	t.Run("decision error rolls back", func(t *testing.T) {
		repo := newEntryRepo(t)
		e := catalog.NewEntry("8", "8.webp")
		seedEntries(t, repo.db, e)

		blocked := errors.New("blocked")
		_, written, err := repo.UpdateStatus(ctx, e.ID, func(*catalog.Entry) (*catalog.StatusPatch, error) {
			return nil, blocked
		})
		assert.ErrorIs(t, err, blocked)
		assert.False(t, written)

		stored := loadEntry(t, repo.db, e.ID)
		assert.Equal(t, "available", stored.AvailabilityStatus)
	})

	t.Run("decision sees stored state", func(t *testing.T) {
		repo := newEntryRepo(t)
		e := catalog.NewEntry("9", "9.webp")
		lock := "sel-1"
		e.SelectionLockID = &lock
		seedEntries(t, repo.db, e)

		var seen *string
		_, _, err := repo.UpdateStatus(ctx, e.ID, func(current *catalog.Entry) (*catalog.StatusPatch, error) {
			seen = current.SelectionLockID
			return nil, nil
		})
		require.NoError(t, err)
		require.NotNil(t, seen)
		assert.Equal(t, "sel-1", *seen)
	})

	t.Run("lock set without a version bump blocks the write", func(t *testing.T) {
		repo := newEntryRepo(t)
		e := catalog.NewEntry("11", "11.webp")
		lock := "sel-9"
		e.SelectionLockID = &lock
		seedEntries(t, repo.db, e)

		// a decision that ignores protection still cannot overwrite a claimed row
		_, written, err := repo.UpdateStatus(ctx, e.ID, func(*catalog.Entry) (*catalog.StatusPatch, error) {
			return soldPatch(now), nil
		})
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.False(t, written)

		stored := loadEntry(t, repo.db, e.ID)
		assert.Equal(t, "available", stored.AvailabilityStatus)
		assert.Equal(t, 1, stored.Version)
	})

	t.Run("empty protection columns do not block the write", func(t *testing.T) {
		repo := newEntryRepo(t)
		e := catalog.NewEntry("12", "12.webp")
		empty := ""
		e.ActiveHoldID = &empty
		seedEntries(t, repo.db, e)

		_, written, err := repo.UpdateStatus(ctx, e.ID, func(*catalog.Entry) (*catalog.StatusPatch, error) {
			return soldPatch(now), nil
		})
		require.NoError(t, err)
		assert.True(t, written)
	})

	t.Run("invalid patch is rejected", func(t *testing.T) {
		repo := newEntryRepo(t)
		e := catalog.NewEntry("10", "10.webp")
		seedEntries(t, repo.db, e)

		_, written, err := repo.UpdateStatus(ctx, e.ID, func(*catalog.Entry) (*catalog.StatusPatch, error) {
			return &catalog.StatusPatch{Availability: catalog.AvailabilityOther, MirroredStatus: "X"}, nil
		})
		require.Error(t, err)
		assert.False(t, written)
	})

	t.Run("missing entry", func(t *testing.T) {
		repo := newEntryRepo(t)

		_, _, err := repo.UpdateStatus(ctx, uuid.New(), func(*catalog.Entry) (*catalog.StatusPatch, error) {
			return soldPatch(now), nil
		})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormEntryRepository_UpdateStatus_Conflicts(t *testing.T) {
	id := uuid.New()
	entryRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "external_key", "file_name", "availability_status", "display_status", "mirrored_external_status", "version"}).
			AddRow(id.String(), "5", "5.webp", "available", "available", "INGRESADO", 3)
	}
	decide := func(*catalog.Entry) (*catalog.StatusPatch, error) {
		return soldPatch(time.Now()), nil
	}

	t.Run("version moved underneath", func(t *testing.T) {
		gormDB, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "catalog_entries"`).WillReturnRows(entryRow())
		mock.ExpectExec(`UPDATE "catalog_entries" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, written, err := NewGormEntryRepository(gormDB).UpdateStatus(context.Background(), id, decide)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.False(t, written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hold taken underneath", func(t *testing.T) {
		gormDB, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "catalog_entries"`).WillReturnRows(entryRow())
		mock.ExpectExec(`UPDATE "catalog_entries" SET .* WHERE .*version = .*COALESCE\(selection_lock_id, ''\) = '' AND COALESCE\(active_hold_id, ''\) = ''`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, written, err := NewGormEntryRepository(gormDB).UpdateStatus(context.Background(), id, decide)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.False(t, written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("serialization failure", func(t *testing.T) {
		gormDB, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "catalog_entries"`).WillReturnRows(entryRow())
		mock.ExpectExec(`UPDATE "catalog_entries" SET`).WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
		mock.ExpectRollback()

		_, _, err := NewGormEntryRepository(gormDB).UpdateStatus(context.Background(), id, decide)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other database errors pass through", func(t *testing.T) {
		gormDB, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "catalog_entries"`).WillReturnRows(entryRow())
		mock.ExpectExec(`UPDATE "catalog_entries" SET`).WillReturnError(assert.AnError)
		mock.ExpectRollback()

		_, _, err := NewGormEntryRepository(gormDB).UpdateStatus(context.Background(), id, decide)

		assert.ErrorIs(t, err, assert.AnError)
		assert.NotErrorIs(t, err, shared.ErrConcurrencyConflict)
	})
}
