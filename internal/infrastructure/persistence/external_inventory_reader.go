package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/photocatalog/backend/internal/domain/inventory"
	"github.com/photocatalog/backend/internal/infrastructure/config"
)

// DefaultChangeLimit caps one change read
const DefaultChangeLimit = 500

// OpenExternalInventory opens a read-only pool against the inventory system.
func OpenExternalInventory(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open inventory database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping inventory database: %w", err)
	}
	return db, nil
}

// ExternalInventoryReader reads recent status changes from the inventory
// system of record. It implements inventory.ChangeSource.
type ExternalInventoryReader struct {
	db       *sql.DB
	query    string
	sentinel string
	timeout  time.Duration
}

// NewExternalInventoryReader builds the change query from the configured
// table and column names.
func NewExternalInventoryReader(db *sql.DB, cfg config.ExternalConfig) *ExternalInventoryReader {
	idCol := pgx.Identifier{cfg.IDColumn}.Sanitize()
	changedCol := pgx.Identifier{cfg.ChangedAtColumn}.Sanitize()

	query := fmt.Sprintf(
		`SELECT %s, %s, %s, %s FROM %s WHERE %s >= $1 AND %s IS NOT NULL AND btrim(%s::text) <> '' AND btrim(%s::text) <> $2 ORDER BY %s DESC LIMIT $3`,
		idCol,
		pgx.Identifier{cfg.StatusColumn}.Sanitize(),
		pgx.Identifier{cfg.ReservationCol}.Sanitize(),
		changedCol,
		pgx.Identifier(strings.Split(cfg.Table, ".")).Sanitize(),
		changedCol,
		idCol, idCol, idCol,
		changedCol,
	)

	return &ExternalInventoryReader{
		db:       db,
		query:    query,
		sentinel: strings.TrimSpace(cfg.SentinelID),
		timeout:  cfg.QueryTimeout,
	}
}

// ChangedSince returns records changed at or after since, newest first, at
// most limit of them. Ids that are blank or equal to the sentinel are dropped.
func (r *ExternalInventoryReader) ChangedSince(ctx context.Context, since time.Time, limit int) ([]inventory.ExternalRecord, error) {
	if limit <= 0 {
		limit = DefaultChangeLimit
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	rows, err := r.db.QueryContext(ctx, r.query, since, r.sentinel, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", inventory.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	records := make([]inventory.ExternalRecord, 0, limit)
	for rows.Next() {
		var (
			id, status, reservationRef sql.NullString
			changedAt                  time.Time
		)
		if err := rows.Scan(&id, &status, &reservationRef, &changedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", inventory.ErrSourceUnavailable, err)
		}

		externalID := strings.TrimSpace(id.String)
		if !id.Valid || externalID == "" || externalID == r.sentinel {
			continue
		}

		var ref *string
		if reservationRef.Valid && strings.TrimSpace(reservationRef.String) != "" {
			v := reservationRef.String
			ref = &v
		}
		records = append(records, inventory.NewExternalRecord(externalID, status.String, ref, changedAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", inventory.ErrSourceUnavailable, err)
	}
	return records, nil
}

var _ inventory.ChangeSource = (*ExternalInventoryReader)(nil)
