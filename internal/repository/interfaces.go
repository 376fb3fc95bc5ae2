package repository

import (
	"context"
	"errors"

	"github.com/rpattn/orderimport/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict indicates the row changed since it was read.
	ErrVersionConflict = errors.New("record version conflict")
)

// ImportRecordRepository persists import attempts.
type ImportRecordRepository interface {
	Create(ctx context.Context, record domain.ImportRecord) (domain.ImportRecord, error)
	GetByID(ctx context.Context, id int64) (domain.ImportRecord, error)
	// GetForUpdate reads the row and locks it until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (domain.ImportRecord, error)
	// Update writes every mutable column when record.Version still matches the
	// stored version and returns the row with its new version.
	Update(ctx context.Context, record domain.ImportRecord) (domain.ImportRecord, error)
	List(ctx context.Context, filter domain.ImportRecordFilter) ([]domain.ImportRecord, int, error)
	// InTx runs fn against a repository bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(repo ImportRecordRepository) error) error
}

// FieldMappingRepository reads client mapping definitions.
type FieldMappingRepository interface {
	GetByID(ctx context.Context, id int64) (domain.FieldMapping, error)
	ListByClient(ctx context.Context, clientID int64) ([]domain.FieldMapping, error)
}

// ClientRepository reads tenants.
type ClientRepository interface {
	GetByID(ctx context.Context, id int64) (domain.Client, error)
}
