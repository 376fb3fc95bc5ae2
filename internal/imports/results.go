package imports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpattn/orderimport/internal/domain"
	"github.com/rpattn/orderimport/internal/mapping"
	"github.com/rpattn/orderimport/internal/storage"
)

// ResultKind names one of the two result blobs of a processing run.
type ResultKind string

const (
	ResultProcessed ResultKind = "processed"
	ResultErrors    ResultKind = "errors"
)

// ParseResultKind validates a result kind from user input.
func ParseResultKind(value string) (ResultKind, error) {
	switch kind := ResultKind(value); kind {
	case ResultProcessed, ResultErrors:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown result kind %q", ErrInvalidRequest, value)
	}
}

// ProcessedRow is one successfully mapped row as stored in the processed blob.
type ProcessedRow struct {
	RowNumber int            `json:"row_number"`
	Values    map[string]any `json:"values"`
}

// ErrorRow is one failed row as stored in the error blob. Raw keeps the
// source cells by header so the row can be corrected and re-uploaded.
type ErrorRow struct {
	RowNumber int                  `json:"row_number"`
	Errors    []mapping.FieldError `json:"errors"`
	Raw       map[string]string    `json:"raw"`
}

// Statistics summarises one processing run.
type Statistics struct {
	TotalRows     int              `json:"total_rows"`
	RowsSucceeded int              `json:"rows_succeeded"`
	RowsFailed    int              `json:"rows_failed"`
	SampleRows    []map[string]any `json:"sample_rows"`
	FileHeaders   []string         `json:"file_headers"`
}

// Result is returned by UploadAndProcess and Process.
type Result struct {
	Record     domain.ImportRecord `json:"import"`
	Statistics Statistics          `json:"statistics"`
}

// ResultPage is one page of a stored result blob.
type ResultPage struct {
	Kind  ResultKind        `json:"kind"`
	Rows  []json.RawMessage `json:"rows"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// Results reads back a page of the processed or error rows of the latest run.
func (s *Service) Results(ctx context.Context, importID, userID int64, kind ResultKind, page, limit int) (ResultPage, error) {
	if _, err := ParseResultKind(string(kind)); err != nil {
		return ResultPage{}, err
	}
	record, err := s.loadOwned(ctx, importID, userID)
	if err != nil {
		return ResultPage{}, err
	}
	if !record.Status.HasResults() {
		return ResultPage{}, fmt.Errorf("%w: import is %s", ErrNotReady, record.Status)
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	result := ResultPage{Kind: kind, Rows: []json.RawMessage{}, Page: page, Limit: limit}

	key := record.ProcessedDataKey
	if kind == ResultErrors {
		key = record.ErrorDataKey
	}
	if key == nil || *key == "" {
		return result, nil
	}

	data, err := s.store.Get(ctx, *key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return ResultPage{}, fmt.Errorf("%w: %s result blob", ErrNotFound, kind)
		}
		return ResultPage{}, &StorageError{Op: "get", Key: *key, Err: err}
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return ResultPage{}, fmt.Errorf("decode %s result blob: %w", kind, err)
	}

	result.Total = len(rows)
	start := (page - 1) * limit
	if start < len(rows) {
		end := min(start+limit, len(rows))
		result.Rows = rows[start:end]
	}
	return result, nil
}
