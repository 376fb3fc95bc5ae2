package domain

import (
	"fmt"
	"time"
)

// ImportStatus captures lifecycle state for an import attempt.
type ImportStatus string

const (
	ImportStatusInitiated        ImportStatus = "initiated"
	ImportStatusFileUploaded     ImportStatus = "file_uploaded"
	ImportStatusProcessing       ImportStatus = "processing"
	ImportStatusPreviewReady     ImportStatus = "preview_ready"
	ImportStatusProcessingFailed ImportStatus = "processing_failed"
	ImportStatusFileUploadFailed ImportStatus = "file_upload_failed"
)

// ImportStatuses lists every known status in lifecycle order.
var ImportStatuses = []ImportStatus{
	ImportStatusInitiated,
	ImportStatusFileUploaded,
	ImportStatusProcessing,
	ImportStatusPreviewReady,
	ImportStatusProcessingFailed,
	ImportStatusFileUploadFailed,
}

var importTransitions = map[ImportStatus][]ImportStatus{
	ImportStatusInitiated:        {ImportStatusFileUploaded, ImportStatusFileUploadFailed},
	ImportStatusFileUploadFailed: {ImportStatusFileUploaded, ImportStatusFileUploadFailed},
	ImportStatusPreviewReady:     {ImportStatusFileUploaded, ImportStatusFileUploadFailed},
	ImportStatusProcessingFailed: {ImportStatusFileUploaded, ImportStatusFileUploadFailed},
	ImportStatusFileUploaded:     {ImportStatusProcessing, ImportStatusFileUploadFailed},
	ImportStatusProcessing:       {ImportStatusPreviewReady, ImportStatusProcessingFailed},
}

// ParseImportStatus converts a persisted value into a known status.
func ParseImportStatus(value string) (ImportStatus, error) {
	status := ImportStatus(value)
	if _, ok := importTransitions[status]; !ok {
		return "", fmt.Errorf("unknown import status %q", value)
	}
	return status, nil
}

// CanTransition reports whether a record in status from may move to status to.
func CanTransition(from, to ImportStatus) bool {
	for _, next := range importTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no stage is currently working on a record in this status.
func (s ImportStatus) IsTerminal() bool {
	switch s {
	case ImportStatusPreviewReady, ImportStatusProcessingFailed, ImportStatusFileUploadFailed:
		return true
	default:
		return false
	}
}

// HasResults reports whether counters and result blobs may be populated in this status.
func (s ImportStatus) HasResults() bool {
	return s == ImportStatusPreviewReady || s == ImportStatusProcessingFailed
}

// ImportRecord mirrors one persisted attempt to import a file for a client.
type ImportRecord struct {
	ID             int64 `json:"id"`
	ClientID       int64 `json:"client_id"`
	UserID         int64 `json:"user_id"`
	FieldMappingID int64 `json:"field_mapping_id"`

	Name             *string `json:"name,omitempty"`
	FileName         *string `json:"file_name,omitempty"`
	SourceLink       *string `json:"source_link,omitempty"`
	ContentType      *string `json:"content_type,omitempty"`
	FileSize         *int64  `json:"file_size,omitempty"`
	OriginalFileKey  *string `json:"original_file_key,omitempty"`
	ProcessedDataKey *string `json:"processed_data_key,omitempty"`
	ErrorDataKey     *string `json:"error_data_key,omitempty"`

	Status        ImportStatus `json:"status"`
	StatusDetails *string      `json:"status_details,omitempty"`

	TotalRows     *int `json:"total_rows,omitempty"`
	RowsSucceeded *int `json:"rows_succeeded,omitempty"`
	RowsFailed    *int `json:"rows_failed,omitempty"`

	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	ProcessingStartedAt  *time.Time `json:"processing_started_at,omitempty"`
	ProcessingFinishedAt *time.Time `json:"processing_finished_at,omitempty"`

	Version int64 `json:"version"`
}

// NewImportRecord prepares a record in the initiated state.
func NewImportRecord(clientID, userID, fieldMappingID int64, name *string) ImportRecord {
	now := time.Now().UTC()
	return ImportRecord{
		ClientID:       clientID,
		UserID:         userID,
		FieldMappingID: fieldMappingID,
		Name:           name,
		Status:         ImportStatusInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// DisplayName returns the custom name, falling back to the uploaded file name.
func (r ImportRecord) DisplayName() string {
	if r.Name != nil && *r.Name != "" {
		return *r.Name
	}
	if r.FileName != nil && *r.FileName != "" {
		return *r.FileName
	}
	return fmt.Sprintf("import #%d", r.ID)
}

// ClearResults drops counters, result blob keys and processing timestamps.
func (r *ImportRecord) ClearResults() {
	r.TotalRows = nil
	r.RowsSucceeded = nil
	r.RowsFailed = nil
	r.ProcessedDataKey = nil
	r.ErrorDataKey = nil
	r.ProcessingStartedAt = nil
	r.ProcessingFinishedAt = nil
}

// SetStatus moves the record to status with optional details.
func (r *ImportRecord) SetStatus(status ImportStatus, details string) {
	r.Status = status
	if details == "" {
		r.StatusDetails = nil
		return
	}
	r.StatusDetails = &details
}

// ImportRecordFilter narrows list queries over import records.
type ImportRecordFilter struct {
	ClientID *int64
	UserID   *int64
	Statuses []ImportStatus
	Search   string
	Sort     string
	Limit    int
	Offset   int
}
