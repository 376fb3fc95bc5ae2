package imports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/orderimport/internal/domain"
	"github.com/rpattn/orderimport/internal/metrics"
	"github.com/rpattn/orderimport/internal/repository"
)

const stageUpload = "upload"

// File is an uploaded payload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadAndProcess stores file as the import's original and immediately runs
// the processing stage. On decode and storage failures the returned Result
// still carries the record in its failed state.
func (s *Service) UploadAndProcess(ctx context.Context, importID, userID int64, file File) (Result, error) {
	record, err := s.upload(ctx, importID, userID, file)
	if err != nil {
		return Result{Record: record}, err
	}
	return s.process(ctx, record)
}

// upload runs the upload stage. It leaves the record either in file_uploaded
// with the new blob or in file_upload_failed with no blob from this attempt.
func (s *Service) upload(ctx context.Context, importID, userID int64, file File) (domain.ImportRecord, error) {
	record, err := s.loadOwned(ctx, importID, userID)
	if err != nil {
		return domain.ImportRecord{}, err
	}
	if !domain.CanTransition(record.Status, domain.ImportStatusFileUploaded) {
		return record, fmt.Errorf("%w: cannot upload a file while import is %s", ErrInvalidState, record.Status)
	}

	fileName := strings.TrimSpace(file.Name)
	if fileName == "" {
		fileName = "upload"
	}
	size := int64(len(file.Data))
	if size == 0 {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return record, ErrEmptyFile
	}
	if size > s.maxFileSize {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return record, fmt.Errorf("%w: %d bytes, limit is %d", ErrFileTooLarge, size, s.maxFileSize)
	}

	key := originalFileKey(record.ClientID, record.ID, s.newID(), fileName)
	sg := newSaga(stageUpload, record.ID, s.log)

	location, err := s.store.Put(ctx, key, file.Data, file.ContentType)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		storageErr := &StorageError{Op: "put", Key: key, Err: err}
		s.log.Errorw("failed to store uploaded file", "import_id", record.ID, "key", key, "error", err)
		return s.markFailed(ctx, stageUpload, record, domain.ImportStatusFileUploadFailed, "failed to store file: "+err.Error()), storageErr
	}
	sg.push("delete uploaded file", func(ctx context.Context) error {
		return s.store.Delete(ctx, key)
	})

	var (
		updated domain.ImportRecord
		stale   []string
	)
	err = s.imports.InTx(ctx, func(repo repository.ImportRecordRepository) error {
		locked, err := repo.GetForUpdate(ctx, record.ID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(locked.Status, domain.ImportStatusFileUploaded) {
			return fmt.Errorf("%w: import moved to %s", ErrInvalidState, locked.Status)
		}

		stale = supersededKeys(locked, key)

		contentType := file.ContentType
		locked.FileName = stringPtr(fileName)
		locked.SourceLink = stringPtr(location)
		locked.ContentType = nil
		if contentType != "" {
			locked.ContentType = &contentType
		}
		locked.FileSize = &size
		locked.OriginalFileKey = stringPtr(key)
		locked.ClearResults()
		locked.SetStatus(domain.ImportStatusFileUploaded, "")

		updated, err = repo.Update(ctx, locked)
		return err
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		s.log.Errorw("failed to record uploaded file", "import_id", record.ID, "key", key, "error", err)
		sg.rollback(ctx)
		if errors.Is(err, ErrInvalidState) {
			return record, err
		}
		failed := s.markFailed(ctx, stageUpload, record, domain.ImportStatusFileUploadFailed, "failed to record uploaded file: "+err.Error())
		return failed, translateRepoError(err)
	}

	metrics.UploadsTotal.WithLabelValues("stored").Inc()
	s.log.Infow("file uploaded",
		"import_id", updated.ID,
		"file_name", fileName,
		"size", size,
		"key", key,
	)

	s.deleteBlobs(ctx, stageUpload, updated.ID, stale)
	return updated, nil
}

// supersededKeys lists the blobs of record that a new original under
// newOriginal replaces.
func supersededKeys(record domain.ImportRecord, newOriginal string) []string {
	var keys []string
	if record.OriginalFileKey != nil && *record.OriginalFileKey != "" && *record.OriginalFileKey != newOriginal {
		keys = append(keys, *record.OriginalFileKey)
	}
	if record.ProcessedDataKey != nil && *record.ProcessedDataKey != "" {
		keys = append(keys, *record.ProcessedDataKey)
	}
	if record.ErrorDataKey != nil && *record.ErrorDataKey != "" {
		keys = append(keys, *record.ErrorDataKey)
	}
	return keys
}

// markFailed moves the record to a failed status outside any failed
// transaction. It is best-effort: errors and panics are logged, never
// returned. The latest known record is returned for the caller's response.
func (s *Service) markFailed(ctx context.Context, stage string, record domain.ImportRecord, status domain.ImportStatus, details string) (result domain.ImportRecord) {
	result = record

	defer func() {
		if p := recover(); p != nil {
			metrics.CleanupFailuresTotal.WithLabelValues(stage).Inc()
			s.log.Errorw("panic while marking import failed", "stage", stage, "import_id", record.ID, "panic", p)
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	var stale []string
	err := s.imports.InTx(ctx, func(repo repository.ImportRecordRepository) error {
		current, err := repo.GetForUpdate(ctx, record.ID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(current.Status, status) {
			result = current
			return nil
		}

		if status == domain.ImportStatusFileUploadFailed {
			// Results of an earlier run no longer describe the record.
			if current.ProcessedDataKey != nil {
				stale = append(stale, *current.ProcessedDataKey)
			}
			if current.ErrorDataKey != nil {
				stale = append(stale, *current.ErrorDataKey)
			}
			current.ClearResults()
		} else {
			finished := s.now()
			current.ProcessingFinishedAt = &finished
		}
		current.SetStatus(status, truncateDetails(details))

		updated, err := repo.Update(ctx, current)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		metrics.CleanupFailuresTotal.WithLabelValues(stage).Inc()
		s.log.Warnw("failed to mark import as failed",
			"stage", stage,
			"import_id", record.ID,
			"status", status,
			"error", err,
		)
		return result
	}

	s.deleteBlobs(ctx, stage, record.ID, stale)
	return result
}
