// Package postgres implements mediastore.Repository on PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE media_asset (
//	    id              UUID PRIMARY KEY,
//	    owner_id        UUID NOT NULL,
//	    filename        TEXT NOT NULL,
//	    mime_type       TEXT NOT NULL,
//	    size_bytes      BIGINT NOT NULL,
//	    storage_locator TEXT NOT NULL,
//	    visibility      TEXT NOT NULL,
//	    metadata        JSONB,
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    updated_at      TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX media_asset_owner_idx ON media_asset (owner_id, created_at DESC);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements mediastore.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("asset already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) CreateAsset(ctx context.Context, asset *mediastore.MediaAsset) error {
	query := `
		INSERT INTO media_asset (
			id, owner_id, filename, mime_type, size_bytes,
			storage_locator, visibility, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		asset.ID, asset.OwnerID, asset.OriginalFilename, asset.MimeType,
		asset.SizeBytes, asset.StorageLocator, asset.Visibility,
		asset.Metadata, asset.CreatedAt, asset.UpdatedAt)

	if err != nil {
		return r.handlePostgresError("create asset", err)
	}

	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (*mediastore.MediaAsset, error) {
	query := `
		SELECT id, owner_id, filename, mime_type, size_bytes,
		       storage_locator, visibility, metadata, created_at, updated_at
		FROM media_asset WHERE id = $1`

	var asset mediastore.MediaAsset
	err := r.db.QueryRow(ctx, query, id).Scan(
		&asset.ID, &asset.OwnerID, &asset.OriginalFilename, &asset.MimeType,
		&asset.SizeBytes, &asset.StorageLocator, &asset.Visibility,
		&asset.Metadata, &asset.CreatedAt, &asset.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediastore.ErrAssetNotFound
		}
		return nil, r.handlePostgresError("get asset", err)
	}

	return &asset, nil
}

func (r *Repository) UpdateAsset(ctx context.Context, asset *mediastore.MediaAsset) error {
	query := `
		UPDATE media_asset SET
			visibility = $2, metadata = $3, updated_at = $4
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		asset.ID, asset.Visibility, asset.Metadata, asset.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update asset", err)
	}
	if tag.RowsAffected() == 0 {
		return mediastore.ErrAssetNotFound
	}

	return nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	// Hard delete: row removal is the authoritative deletion step.
	tag, err := r.db.Exec(ctx, `DELETE FROM media_asset WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete asset", err)
	}
	if tag.RowsAffected() == 0 {
		return mediastore.ErrAssetNotFound
	}

	return nil
}

func (r *Repository) ListAssets(ctx context.Context, filter mediastore.AssetFilter) ([]*mediastore.MediaAsset, int64, error) {
	where := `WHERE owner_id = $1`
	args := []interface{}{filter.OwnerID}

	if filter.MimeTypePrefix != "" {
		args = append(args, escapeLikePattern(filter.MimeTypePrefix)+"%")
		where += fmt.Sprintf(" AND mime_type LIKE $%d", len(args))
	}
	if filter.FilenameSearch != "" {
		args = append(args, "%"+escapeLikePattern(filter.FilenameSearch)+"%")
		where += fmt.Sprintf(" AND filename ILIKE $%d", len(args))
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM media_asset `+where, args...).Scan(&total); err != nil {
		return nil, 0, r.handlePostgresError("count assets", err)
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	query := fmt.Sprintf(`
		SELECT id, owner_id, filename, mime_type, size_bytes,
		       storage_locator, visibility, metadata, created_at, updated_at
		FROM media_asset %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, r.handlePostgresError("list assets", err)
	}
	defer rows.Close()

	var assets []*mediastore.MediaAsset
	for rows.Next() {
		var asset mediastore.MediaAsset
		if err := rows.Scan(
			&asset.ID, &asset.OwnerID, &asset.OriginalFilename, &asset.MimeType,
			&asset.SizeBytes, &asset.StorageLocator, &asset.Visibility,
			&asset.Metadata, &asset.CreatedAt, &asset.UpdatedAt); err != nil {
			return nil, 0, r.handlePostgresError("scan asset", err)
		}
		assets = append(assets, &asset)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, r.handlePostgresError("list assets", err)
	}

	return assets, total, nil
}

// escapeLikePattern escapes the LIKE metacharacters in user input so a
// search for "100%" matches literally instead of as a wildcard.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
