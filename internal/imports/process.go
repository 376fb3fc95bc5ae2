package imports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/orderimport/internal/domain"
	"github.com/rpattn/orderimport/internal/mapping"
	"github.com/rpattn/orderimport/internal/metrics"
	"github.com/rpattn/orderimport/internal/repository"
	"github.com/rpattn/orderimport/internal/tabular"
)

const (
	stageProcess = "process"
	// rows evaluated between cancellation checks
	cancelCheckInterval = 100
)

// Process re-runs the processing stage for an import in file_uploaded.
func (s *Service) Process(ctx context.Context, importID, userID int64) (Result, error) {
	record, err := s.loadOwned(ctx, importID, userID)
	if err != nil {
		return Result{}, err
	}
	return s.process(ctx, record)
}

type evaluation struct {
	processed []ProcessedRow
	failed    []ErrorRow
	sample    []map[string]any
}

func (e evaluation) total() int {
	return len(e.processed) + len(e.failed)
}

// process runs the processing stage against a record the caller loaded.
func (s *Service) process(ctx context.Context, record domain.ImportRecord) (Result, error) {
	if record.Status != domain.ImportStatusFileUploaded {
		return Result{Record: record}, fmt.Errorf("%w: import is %s", ErrNotReady, record.Status)
	}

	fieldMapping, err := s.mappings.GetByID(ctx, record.FieldMappingID)
	if err != nil {
		return Result{Record: record}, translateRepoError(err)
	}
	rules, err := mapping.ParseRuleSet(fieldMapping.Rules)
	if err != nil {
		return Result{Record: record}, fmt.Errorf("mapping %d: %w", fieldMapping.ID, err)
	}
	for _, skipped := range rules.Skipped {
		s.log.Warnw("mapping rule skipped",
			"import_id", record.ID,
			"field_mapping_id", fieldMapping.ID,
			"field", skipped.Field,
			"reason", skipped.Reason,
		)
	}
	for _, name := range rules.UnknownTransforms() {
		s.log.Warnw("unknown transform, values pass through unchanged",
			"import_id", record.ID,
			"field_mapping_id", fieldMapping.ID,
			"transform", name,
		)
	}

	started := s.now()
	pending := record
	pending.SetStatus(domain.ImportStatusProcessing, "")
	pending.ProcessingStartedAt = &started
	pending.ProcessingFinishedAt = nil
	marked, err := s.imports.Update(ctx, pending)
	if err != nil {
		return Result{Record: record}, translateRepoError(err)
	}
	record = marked

	timer := time.Now()
	defer func() {
		metrics.ProcessingSeconds.Observe(time.Since(timer).Seconds())
	}()

	pctx, cancel := context.WithTimeout(ctx, s.processTimeout)
	defer cancel()

	sg := newSaga(stageProcess, record.ID, s.log)

	if record.OriginalFileKey == nil {
		err := &StorageError{Op: "get", Err: errors.New("import has no original file")}
		return s.failProcessing(ctx, sg, record, err.Error(), err)
	}
	data, err := s.store.Get(pctx, *record.OriginalFileKey)
	if err != nil {
		storageErr := &StorageError{Op: "get", Key: *record.OriginalFileKey, Err: err}
		return s.failProcessing(ctx, sg, record, "failed to read uploaded file: "+err.Error(), storageErr)
	}

	var fileName, contentType string
	if record.FileName != nil {
		fileName = *record.FileName
	}
	if record.ContentType != nil {
		contentType = *record.ContentType
	}
	table, err := tabular.Decode(fileName, contentType, data)
	if err != nil {
		decodeErr := &DecodeError{Err: err}
		s.log.Warnw("failed to decode uploaded file", "import_id", record.ID, "file_name", fileName, "error", err)
		return s.failProcessing(ctx, sg, record, decodeErr.Error(), decodeErr)
	}

	eval, err := s.evaluate(pctx, table, rules)
	if err != nil {
		return s.failProcessing(ctx, sg, record, "processing aborted: "+err.Error(), fmt.Errorf("processing aborted: %w", err))
	}

	status, details := decideStatus(eval)

	runID := s.newID()
	var processedKey, errorKey *string
	if len(eval.processed) > 0 {
		key := resultKey(record.ClientID, record.ID, runID, ResultProcessed)
		if err := s.putResult(pctx, sg, key, eval.processed); err != nil {
			return s.failProcessing(ctx, sg, record, "failed to store processed rows: "+err.Error(), err)
		}
		processedKey = &key
	}
	if len(eval.failed) > 0 {
		key := resultKey(record.ClientID, record.ID, runID, ResultErrors)
		if err := s.putResult(pctx, sg, key, eval.failed); err != nil {
			return s.failProcessing(ctx, sg, record, "failed to store error rows: "+err.Error(), err)
		}
		errorKey = &key
	}

	var committed domain.ImportRecord
	err = s.imports.InTx(ctx, func(repo repository.ImportRecordRepository) error {
		current, err := repo.GetForUpdate(ctx, record.ID)
		if err != nil {
			return err
		}
		if current.Version != record.Version {
			return fmt.Errorf("import %d changed during processing: %w", record.ID, repository.ErrVersionConflict)
		}

		finished := s.now()
		current.SetStatus(status, details)
		current.TotalRows = intPtr(eval.total())
		current.RowsSucceeded = intPtr(len(eval.processed))
		current.RowsFailed = intPtr(len(eval.failed))
		current.ProcessedDataKey = processedKey
		current.ErrorDataKey = errorKey
		current.ProcessingFinishedAt = &finished

		committed, err = repo.Update(ctx, current)
		return err
	})
	if err != nil {
		s.log.Errorw("failed to commit processing results", "import_id", record.ID, "error", err)
		if errors.Is(err, repository.ErrVersionConflict) {
			sg.rollback(ctx)
			return Result{Record: record}, translateRepoError(err)
		}
		return s.failProcessing(ctx, sg, record, "failed to save processing results: "+err.Error(), translateRepoError(err))
	}

	metrics.RowsTotal.WithLabelValues("succeeded").Add(float64(len(eval.processed)))
	metrics.RowsTotal.WithLabelValues("failed").Add(float64(len(eval.failed)))
	s.log.Infow("import processed",
		"import_id", committed.ID,
		"status", committed.Status,
		"total_rows", eval.total(),
		"rows_succeeded", len(eval.processed),
		"rows_failed", len(eval.failed),
	)

	return Result{
		Record: committed,
		Statistics: Statistics{
			TotalRows:     eval.total(),
			RowsSucceeded: len(eval.processed),
			RowsFailed:    len(eval.failed),
			SampleRows:    eval.sample,
			FileHeaders:   table.Headers,
		},
	}, nil
}

// evaluate maps every non-blank data row in file order.
func (s *Service) evaluate(ctx context.Context, table tabular.Table, rules mapping.RuleSet) (evaluation, error) {
	index := mapping.NewHeaderIndex(table.Headers)
	eval := evaluation{sample: []map[string]any{}}

	for i, row := range table.Rows {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return evaluation{}, err
			}
		}
		if tabular.IsBlank(row) {
			continue
		}

		outcome := mapping.Evaluate(index, row, rules, s.catalog)
		rowNumber := table.RowNumber(i)
		if outcome.OK() {
			eval.processed = append(eval.processed, ProcessedRow{RowNumber: rowNumber, Values: outcome.Values})
			if len(eval.sample) < s.sampleSize {
				eval.sample = append(eval.sample, outcome.Values)
			}
			continue
		}

		raw := make(map[string]string, len(table.Headers))
		for col, header := range table.Headers {
			if col < len(row) {
				raw[header] = row[col]
			}
		}
		eval.failed = append(eval.failed, ErrorRow{RowNumber: rowNumber, Errors: outcome.Errors, Raw: raw})
	}
	return eval, nil
}

// decideStatus applies the terminal status precedence for a decoded file.
func decideStatus(eval evaluation) (domain.ImportStatus, string) {
	total, succeeded, failed := eval.total(), len(eval.processed), len(eval.failed)
	switch {
	case total == 0:
		return domain.ImportStatusPreviewReady, "File contains no data rows"
	case succeeded == 0:
		return domain.ImportStatusProcessingFailed, fmt.Sprintf("All %d rows failed validation", total)
	case failed > 0:
		return domain.ImportStatusPreviewReady, fmt.Sprintf("Processed %d rows: %d succeeded, %d failed", total, succeeded, failed)
	default:
		return domain.ImportStatusPreviewReady, fmt.Sprintf("All %d rows processed successfully", total)
	}
}

func (s *Service) putResult(ctx context.Context, sg *saga, key string, rows any) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := s.store.Put(ctx, key, payload, "application/json"); err != nil {
		return &StorageError{Op: "put", Key: key, Err: err}
	}
	sg.push("delete result blob "+key, func(ctx context.Context) error {
		return s.store.Delete(ctx, key)
	})
	return nil
}

// failProcessing undoes the run's blob writes, records processing_failed on
// a best-effort basis and returns cause with the latest record.
func (s *Service) failProcessing(ctx context.Context, sg *saga, record domain.ImportRecord, details string, cause error) (Result, error) {
	sg.rollback(ctx)
	failed := s.markFailed(ctx, stageProcess, record, domain.ImportStatusProcessingFailed, details)
	return Result{Record: failed}, cause
}
