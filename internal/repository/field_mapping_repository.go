package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/orderimport/internal/db"
	"github.com/rpattn/orderimport/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type fieldMappingRepository struct {
	q db.DBTX
}

// NewFieldMappingRepository wires a read-only mapping lookup.
func NewFieldMappingRepository(conn *db.Connection) FieldMappingRepository {
	return &fieldMappingRepository{q: conn.Pool}
}

func (r *fieldMappingRepository) GetByID(ctx context.Context, id int64) (domain.FieldMapping, error) {
	row := r.q.QueryRow(
		ctx,
		`SELECT id, client_id, name, rules, created_at, updated_at
		 FROM field_mappings
		 WHERE id = $1`,
		id,
	)

	mapping, err := scanFieldMapping(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FieldMapping{}, fmt.Errorf("field mapping %d: %w", id, ErrNotFound)
		}
		return domain.FieldMapping{}, fmt.Errorf("get field mapping: %w", err)
	}
	return mapping, nil
}

func (r *fieldMappingRepository) ListByClient(ctx context.Context, clientID int64) ([]domain.FieldMapping, error) {
	rows, err := r.q.Query(
		ctx,
		`SELECT id, client_id, name, rules, created_at, updated_at
		 FROM field_mappings
		 WHERE client_id = $1
		 ORDER BY name ASC, id ASC`,
		clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list field mappings: %w", err)
	}
	defer rows.Close()

	mappings := []domain.FieldMapping{}
	for rows.Next() {
		mapping, scanErr := scanFieldMapping(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan field mapping: %w", scanErr)
		}
		mappings = append(mappings, mapping)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate field mappings: %w", rowsErr)
	}
	return mappings, nil
}

func scanFieldMapping(row pgx.Row) (domain.FieldMapping, error) {
	var (
		mapping   domain.FieldMapping
		rules     []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&mapping.ID, &mapping.ClientID, &mapping.Name, &rules, &createdAt, &updatedAt); err != nil {
		return domain.FieldMapping{}, err
	}
	mapping.Rules = rules
	if createdAt.Valid {
		mapping.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		mapping.UpdatedAt = updatedAt.Time
	}
	return mapping, nil
}
