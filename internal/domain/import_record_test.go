package domain

import "testing"

func TestCanTransitionTable(t *testing.T) {
	allowed := map[ImportStatus]map[ImportStatus]bool{
		ImportStatusInitiated:        {ImportStatusFileUploaded: true, ImportStatusFileUploadFailed: true},
		ImportStatusFileUploadFailed: {ImportStatusFileUploaded: true, ImportStatusFileUploadFailed: true},
		ImportStatusPreviewReady:     {ImportStatusFileUploaded: true, ImportStatusFileUploadFailed: true},
		ImportStatusProcessingFailed: {ImportStatusFileUploaded: true, ImportStatusFileUploadFailed: true},
		ImportStatusFileUploaded:     {ImportStatusProcessing: true, ImportStatusFileUploadFailed: true},
		ImportStatusProcessing:       {ImportStatusPreviewReady: true, ImportStatusProcessingFailed: true},
	}

	for _, from := range ImportStatuses {
		for _, to := range ImportStatuses {
			want := allowed[from][to]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestParseImportStatus(t *testing.T) {
	for _, status := range ImportStatuses {
		parsed, err := ParseImportStatus(string(status))
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", status, err)
		}
		if parsed != status {
			t.Fatalf("expected %s, got %s", status, parsed)
		}
	}
	if _, err := ParseImportStatus("done"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestClearResults(t *testing.T) {
	total, ok, failed := 3, 2, 1
	processed, errorsKey := "p", "e"
	record := ImportRecord{
		TotalRows:        &total,
		RowsSucceeded:    &ok,
		RowsFailed:       &failed,
		ProcessedDataKey: &processed,
		ErrorDataKey:     &errorsKey,
	}

	record.ClearResults()

	if record.TotalRows != nil || record.RowsSucceeded != nil || record.RowsFailed != nil {
		t.Fatalf("expected counters cleared: %+v", record)
	}
	if record.ProcessedDataKey != nil || record.ErrorDataKey != nil {
		t.Fatalf("expected result keys cleared: %+v", record)
	}
}

func TestDisplayNameFallbacks(t *testing.T) {
	record := ImportRecord{ID: 7}
	if got := record.DisplayName(); got != "import #7" {
		t.Fatalf("unexpected fallback name %q", got)
	}

	fileName := "orders.xlsx"
	record.FileName = &fileName
	if got := record.DisplayName(); got != fileName {
		t.Fatalf("expected file name, got %q", got)
	}

	custom := "March orders"
	record.Name = &custom
	if got := record.DisplayName(); got != custom {
		t.Fatalf("expected custom name, got %q", got)
	}
}
