package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/orderimport/internal/db"
	"github.com/rpattn/orderimport/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const importColumns = `id, client_id, user_id, field_mapping_id, name, file_name, source_link,
	content_type, file_size, original_file_key, processed_data_key, error_data_key,
	status, status_details, total_rows, rows_succeeded, rows_failed,
	created_at, updated_at, processing_started_at, processing_finished_at, version`

const (
	defaultListLimit = 20
	// MaxListLimit caps the page size of every import listing.
	MaxListLimit     = 100
)

// importSortOrders whitelists the ORDER BY clauses a caller may request.
var importSortOrders = map[string]string{
	"created_at":  "created_at ASC, id ASC",
	"-created_at": "created_at DESC, id DESC",
	"updated_at":  "updated_at ASC, id ASC",
	"-updated_at": "updated_at DESC, id DESC",
	"name":        "COALESCE(name, file_name, '') ASC, id ASC",
	"-name":       "COALESCE(name, file_name, '') DESC, id DESC",
	"status":      "status ASC, id ASC",
	"-status":     "status DESC, id DESC",
	"id":          "id ASC",
	"-id":         "id DESC",
}

// DefaultImportSort is applied when no sort key or an unknown one is given.
const DefaultImportSort = "-created_at"

// IsImportSortKey reports whether key is an accepted list sort key.
func IsImportSortKey(key string) bool {
	_, ok := importSortOrders[key]
	return ok
}

type importRecordRepository struct {
	conn *db.Connection
	q    db.DBTX
	inTx bool
}

// NewImportRecordRepository wires a repository backed by the connection pool.
func NewImportRecordRepository(conn *db.Connection) ImportRecordRepository {
	return &importRecordRepository{conn: conn, q: conn.Pool}
}

func (r *importRecordRepository) InTx(ctx context.Context, fn func(repo ImportRecordRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&importRecordRepository{conn: r.conn, q: tx, inTx: true})
	})
}

func (r *importRecordRepository) Create(ctx context.Context, record domain.ImportRecord) (domain.ImportRecord, error) {
	row := r.q.QueryRow(
		ctx,
		`INSERT INTO imports (client_id, user_id, field_mapping_id, name, status, status_details)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+importColumns,
		record.ClientID,
		record.UserID,
		record.FieldMappingID,
		record.Name,
		string(record.Status),
		record.StatusDetails,
	)

	created, err := scanImportRecord(row)
	if err != nil {
		return domain.ImportRecord{}, fmt.Errorf("insert import record: %w", err)
	}
	return created, nil
}

func (r *importRecordRepository) GetByID(ctx context.Context, id int64) (domain.ImportRecord, error) {
	return r.get(ctx, id, "")
}

func (r *importRecordRepository) GetForUpdate(ctx context.Context, id int64) (domain.ImportRecord, error) {
	if !r.inTx {
		return domain.ImportRecord{}, errors.New("GetForUpdate requires a transaction")
	}
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *importRecordRepository) get(ctx context.Context, id int64, lock string) (domain.ImportRecord, error) {
	row := r.q.QueryRow(ctx, `SELECT `+importColumns+` FROM imports WHERE id = $1`+lock, id)
	record, err := scanImportRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportRecord{}, fmt.Errorf("import %d: %w", id, ErrNotFound)
		}
		return domain.ImportRecord{}, fmt.Errorf("get import record: %w", err)
	}
	return record, nil
}

func (r *importRecordRepository) Update(ctx context.Context, record domain.ImportRecord) (domain.ImportRecord, error) {
	row := r.q.QueryRow(
		ctx,
		`UPDATE imports SET
			name = $2,
			file_name = $3,
			source_link = $4,
			content_type = $5,
			file_size = $6,
			original_file_key = $7,
			processed_data_key = $8,
			error_data_key = $9,
			status = $10,
			status_details = $11,
			total_rows = $12,
			rows_succeeded = $13,
			rows_failed = $14,
			processing_started_at = $15,
			processing_finished_at = $16,
			updated_at = NOW(),
			version = version + 1
		 WHERE id = $1 AND version = $17
		 RETURNING `+importColumns,
		record.ID,
		record.Name,
		record.FileName,
		record.SourceLink,
		record.ContentType,
		record.FileSize,
		record.OriginalFileKey,
		record.ProcessedDataKey,
		record.ErrorDataKey,
		string(record.Status),
		record.StatusDetails,
		record.TotalRows,
		record.RowsSucceeded,
		record.RowsFailed,
		record.ProcessingStartedAt,
		record.ProcessingFinishedAt,
		record.Version,
	)

	updated, err := scanImportRecord(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ImportRecord{}, fmt.Errorf("update import record: %w", err)
	}

	var exists bool
	if existsErr := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM imports WHERE id = $1)`, record.ID).Scan(&exists); existsErr != nil {
		return domain.ImportRecord{}, fmt.Errorf("update import record: %w", existsErr)
	}
	if !exists {
		return domain.ImportRecord{}, fmt.Errorf("import %d: %w", record.ID, ErrNotFound)
	}
	return domain.ImportRecord{}, fmt.Errorf("import %d at version %d: %w", record.ID, record.Version, ErrVersionConflict)
}

func (r *importRecordRepository) List(ctx context.Context, filter domain.ImportRecordFilter) ([]domain.ImportRecord, int, error) {
	query := buildImportListQuery(filter)

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM imports`+query.where, query.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count import records: %w", err)
	}

	args := append(query.args, query.limit, query.offset)
	rows, err := r.q.Query(
		ctx,
		fmt.Sprintf(`SELECT %s FROM imports%s ORDER BY %s LIMIT $%d OFFSET $%d`,
			importColumns, query.where, query.orderBy, len(query.args)+1, len(query.args)+2),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list import records: %w", err)
	}
	defer rows.Close()

	records := []domain.ImportRecord{}
	for rows.Next() {
		record, scanErr := scanImportRecord(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan import record: %w", scanErr)
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, fmt.Errorf("failed to iterate import records: %w", rowsErr)
	}

	return records, total, nil
}

type importListQuery struct {
	where   string
	args    []any
	orderBy string
	limit   int
	offset  int
}

func buildImportListQuery(filter domain.ImportRecordFilter) importListQuery {
	var (
		clauses []string
		args    []any
	)
	next := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ClientID != nil {
		clauses = append(clauses, "client_id = "+next(*filter.ClientID))
	}
	if filter.UserID != nil {
		clauses = append(clauses, "user_id = "+next(*filter.UserID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		clauses = append(clauses, "status = ANY("+next(statuses)+")")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		placeholder := next("%" + escapeLike(search) + "%")
		clauses = append(clauses, fmt.Sprintf("(name ILIKE %[1]s OR file_name ILIKE %[1]s)", placeholder))
	}

	query := importListQuery{args: args, limit: filter.Limit, offset: filter.Offset}
	if len(clauses) > 0 {
		query.where = " WHERE " + strings.Join(clauses, " AND ")
	}

	orderBy, ok := importSortOrders[filter.Sort]
	if !ok {
		orderBy = importSortOrders[DefaultImportSort]
	}
	query.orderBy = orderBy

	if query.limit <= 0 {
		query.limit = defaultListLimit
	}
	if query.limit > MaxListLimit {
		query.limit = MaxListLimit
	}
	if query.offset < 0 {
		query.offset = 0
	}
	return query
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}

func scanImportRecord(row pgx.Row) (domain.ImportRecord, error) {
	var (
		record               domain.ImportRecord
		name                 pgtype.Text
		fileName             pgtype.Text
		sourceLink           pgtype.Text
		contentType          pgtype.Text
		fileSize             pgtype.Int8
		originalFileKey      pgtype.Text
		processedDataKey     pgtype.Text
		errorDataKey         pgtype.Text
		status               string
		statusDetails        pgtype.Text
		totalRows            pgtype.Int4
		rowsSucceeded        pgtype.Int4
		rowsFailed           pgtype.Int4
		createdAt            pgtype.Timestamptz
		updatedAt            pgtype.Timestamptz
		processingStartedAt  pgtype.Timestamptz
		processingFinishedAt pgtype.Timestamptz
	)

	if err := row.Scan(
		&record.ID,
		&record.ClientID,
		&record.UserID,
		&record.FieldMappingID,
		&name,
		&fileName,
		&sourceLink,
		&contentType,
		&fileSize,
		&originalFileKey,
		&processedDataKey,
		&errorDataKey,
		&status,
		&statusDetails,
		&totalRows,
		&rowsSucceeded,
		&rowsFailed,
		&createdAt,
		&updatedAt,
		&processingStartedAt,
		&processingFinishedAt,
		&record.Version,
	); err != nil {
		return domain.ImportRecord{}, err
	}

	parsed, err := domain.ParseImportStatus(status)
	if err != nil {
		return domain.ImportRecord{}, err
	}
	record.Status = parsed

	record.Name = textPtr(name)
	record.FileName = textPtr(fileName)
	record.SourceLink = textPtr(sourceLink)
	record.ContentType = textPtr(contentType)
	record.OriginalFileKey = textPtr(originalFileKey)
	record.ProcessedDataKey = textPtr(processedDataKey)
	record.ErrorDataKey = textPtr(errorDataKey)
	record.StatusDetails = textPtr(statusDetails)

	if fileSize.Valid {
		value := fileSize.Int64
		record.FileSize = &value
	}
	record.TotalRows = int4Ptr(totalRows)
	record.RowsSucceeded = int4Ptr(rowsSucceeded)
	record.RowsFailed = int4Ptr(rowsFailed)

	if createdAt.Valid {
		record.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		record.UpdatedAt = updatedAt.Time
	}
	if processingStartedAt.Valid {
		value := processingStartedAt.Time
		record.ProcessingStartedAt = &value
	}
	if processingFinishedAt.Valid {
		value := processingFinishedAt.Time
		record.ProcessingFinishedAt = &value
	}

	return record, nil
}

func textPtr(value pgtype.Text) *string {
	if !value.Valid {
		return nil
	}
	text := value.String
	return &text
}

func int4Ptr(value pgtype.Int4) *int {
	if !value.Valid {
		return nil
	}
	n := int(value.Int32)
	return &n
}
