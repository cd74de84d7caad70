package cities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const cityColumns = `id, external_doc_id, name, name_en, country, image_url, local_image_filename, last_updated, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new city.
func (r *PGRepo) Create(ctx context.Context, city City) error {
	if strings.TrimSpace(city.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	const query = `
INSERT INTO cities (
    id,
    external_doc_id,
    name,
    name_en,
    country,
    image_url,
    local_image_filename,
    last_updated,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	createdAt := city.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	lastUpdated := city.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = createdAt
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		city.ID,
		nullString(city.ExternalDocID),
		city.Name,
		city.NameEn,
		city.Country,
		nullString(city.ImageURL),
		nullString(city.LocalImageFilename),
		lastUpdated,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert city: %w", err)
	}
	return nil
}

// GetByID returns a city by primary key.
func (r *PGRepo) GetByID(ctx context.Context, id string) (City, error) {
	query := `SELECT ` + cityColumns + ` FROM cities WHERE id = $1`
	city, err := scanCity(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return City{}, ErrNotFound
		}
		return City{}, err
	}
	return city, nil
}

// ListNeedingEnrichment returns cities missing image data ordered by creation.
func (r *PGRepo) ListNeedingEnrichment(ctx context.Context) ([]City, error) {
	query := `SELECT ` + cityColumns + `
FROM cities
WHERE image_url IS NULL OR image_url = '' OR local_image_filename IS NULL OR local_image_filename = ''
ORDER BY created_at, id`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cities needing enrichment: %w", err)
	}
	defer rows.Close()

	out := make([]City, 0)
	for rows.Next() {
		city, err := scanCity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, city)
	}
	return out, rows.Err()
}

// Update locks the row, applies fn and writes the enrichment fields in one transaction.
func (r *PGRepo) Update(ctx context.Context, id string, fn UpdateFunc) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + cityColumns + ` FROM cities WHERE id = $1 FOR UPDATE`
	city, err := scanCity(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	changed, err := fn(&city)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	const update = `
UPDATE cities
SET external_doc_id = $1, image_url = $2, local_image_filename = $3, last_updated = $4
WHERE id = $5`
	if _, err := tx.ExecContext(
		ctx,
		update,
		nullString(city.ExternalDocID),
		nullString(city.ImageURL),
		nullString(city.LocalImageFilename),
		city.LastUpdated,
		id,
	); err != nil {
		return fmt.Errorf("update city: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanCity(row rowScanner) (City, error) {
	var city City
	var externalDocID sql.NullString
	var imageURL sql.NullString
	var localFile sql.NullString
	if err := row.Scan(
		&city.ID,
		&externalDocID,
		&city.Name,
		&city.NameEn,
		&city.Country,
		&imageURL,
		&localFile,
		&city.LastUpdated,
		&city.CreatedAt,
	); err != nil {
		return City{}, err
	}
	if externalDocID.Valid {
		city.ExternalDocID = StringPtr(externalDocID.String)
	}
	if imageURL.Valid {
		city.ImageURL = StringPtr(imageURL.String)
	}
	if localFile.Valid {
		city.LocalImageFilename = StringPtr(localFile.String)
	}
	return city, nil
}

func nullString(p *string) sql.NullString {
	if p == nil || strings.TrimSpace(*p) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
