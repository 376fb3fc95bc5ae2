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

type clientRepository struct {
	q db.DBTX
}

// NewClientRepository wires a read-only client lookup.
func NewClientRepository(conn *db.Connection) ClientRepository {
	return &clientRepository{q: conn.Pool}
}

func (r *clientRepository) GetByID(ctx context.Context, id int64) (domain.Client, error) {
	var (
		client    domain.Client
		createdAt pgtype.Timestamptz
	)
	err := r.q.QueryRow(ctx, `SELECT id, name, is_active, created_at FROM clients WHERE id = $1`, id).
		Scan(&client.ID, &client.Name, &client.IsActive, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Client{}, fmt.Errorf("client %d: %w", id, ErrNotFound)
		}
		return domain.Client{}, fmt.Errorf("get client: %w", err)
	}
	if createdAt.Valid {
		client.CreatedAt = createdAt.Time
	}
	return client, nil
}
