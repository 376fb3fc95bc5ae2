package imports

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rpattn/orderimport/internal/domain"
	"github.com/rpattn/orderimport/internal/repository"
	"github.com/rpattn/orderimport/internal/storage"
)

type stubImportRepo struct {
	mu      sync.Mutex
	records map[int64]domain.ImportRecord
	nextID  int64
	updates []domain.ImportRecord
	inTx    bool

	failUpdate  func(record domain.ImportRecord) error
	onLock      func(stored *domain.ImportRecord)
	lastFilter  domain.ImportRecordFilter
	commitCount int
}

func newStubImportRepo() *stubImportRepo {
	return &stubImportRepo{records: make(map[int64]domain.ImportRecord)}
}

func (r *stubImportRepo) Create(ctx context.Context, record domain.ImportRecord) (domain.ImportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	record.ID = r.nextID
	record.Version = 1
	r.records[record.ID] = record
	return record, nil
}

func (r *stubImportRepo) GetByID(ctx context.Context, id int64) (domain.ImportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return domain.ImportRecord{}, fmt.Errorf("import %d: %w", id, repository.ErrNotFound)
	}
	return record, nil
}

func (r *stubImportRepo) GetForUpdate(ctx context.Context, id int64) (domain.ImportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return domain.ImportRecord{}, fmt.Errorf("import %d: %w", id, repository.ErrNotFound)
	}
	if r.onLock != nil {
		r.onLock(&record)
		r.records[id] = record
	}
	return record, nil
}

func (r *stubImportRepo) Update(ctx context.Context, record domain.ImportRecord) (domain.ImportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		if err := r.failUpdate(record); err != nil {
			return domain.ImportRecord{}, err
		}
	}
	current, ok := r.records[record.ID]
	if !ok {
		return domain.ImportRecord{}, fmt.Errorf("import %d: %w", record.ID, repository.ErrNotFound)
	}
	if current.Version != record.Version {
		return domain.ImportRecord{}, repository.ErrVersionConflict
	}
	record.Version++
	record.UpdatedAt = time.Now().UTC()
	r.records[record.ID] = record
	r.updates = append(r.updates, record)
	return record, nil
}

func (r *stubImportRepo) List(ctx context.Context, filter domain.ImportRecordFilter) ([]domain.ImportRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter

	var matched []domain.ImportRecord
	for _, record := range r.records {
		if filter.ClientID != nil && record.ClientID != *filter.ClientID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(record.DisplayName()), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, record)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	start := min(filter.Offset, total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

// InTx snapshots the records and restores them when fn fails.
func (r *stubImportRepo) InTx(ctx context.Context, fn func(repo repository.ImportRecordRepository) error) error {
	r.mu.Lock()
	snapshot := make(map[int64]domain.ImportRecord, len(r.records))
	for id, record := range r.records {
		snapshot[id] = record
	}
	history := len(r.updates)
	r.inTx = true
	r.mu.Unlock()

	err := fn(r)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inTx = false
	if err != nil {
		r.records = snapshot
		r.updates = r.updates[:history]
		return err
	}
	r.commitCount++
	return nil
}

func (r *stubImportRepo) record(t *testing.T, id int64) domain.ImportRecord {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		t.Fatalf("import %d not stored", id)
	}
	return record
}

func (r *stubImportRepo) setStatus(id int64, status domain.ImportStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record := r.records[id]
	record.Status = status
	r.records[id] = record
}

type stubMappingRepo struct {
	mappings map[int64]domain.FieldMapping
}

func (r *stubMappingRepo) GetByID(ctx context.Context, id int64) (domain.FieldMapping, error) {
	mapping, ok := r.mappings[id]
	if !ok {
		return domain.FieldMapping{}, fmt.Errorf("field mapping %d: %w", id, repository.ErrNotFound)
	}
	return mapping, nil
}

func (r *stubMappingRepo) ListByClient(ctx context.Context, clientID int64) ([]domain.FieldMapping, error) {
	var out []domain.FieldMapping
	for _, mapping := range r.mappings {
		if mapping.ClientID == clientID {
			out = append(out, mapping)
		}
	}
	return out, nil
}

type stubClientRepo struct {
	clients map[int64]domain.Client
}

func (r *stubClientRepo) GetByID(ctx context.Context, id int64) (domain.Client, error) {
	client, ok := r.clients[id]
	if !ok {
		return domain.Client{}, fmt.Errorf("client %d: %w", id, repository.ErrNotFound)
	}
	return client, nil
}

// faultyStore wraps the memory store with injectable failures.
type faultyStore struct {
	*storage.MemoryStore

	mu        sync.Mutex
	putErr    func(key string) error
	deleteErr func(key string) error
	deleted   []string
}

func (s *faultyStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	putErr := s.putErr
	s.mu.Unlock()
	if putErr != nil {
		if err := putErr(key); err != nil {
			return "", err
		}
	}
	return s.MemoryStore.Put(ctx, key, data, contentType)
}

func (s *faultyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, key)
	deleteErr := s.deleteErr
	s.mu.Unlock()
	if deleteErr != nil {
		if err := deleteErr(key); err != nil {
			return err
		}
	}
	return s.MemoryStore.Delete(ctx, key)
}

const (
	testClientID      int64 = 1
	otherClientID     int64 = 2
	testMappingID     int64 = 10
	otherMappingID    int64 = 20
	testUserID        int64 = 7
	requiredOrderRule       = `{
		"order_number": {"source_header": "Order", "is_required": true},
		"revenue": {"source_header": "Revenue", "is_required": true}
	}`
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     *stubImportRepo
	store    *faultyStore
	mappings *stubMappingRepo
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T, rules string, opts ...Option) *fixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	repo := newStubImportRepo()
	store := &faultyStore{MemoryStore: storage.NewMemoryStore()}
	mappings := &stubMappingRepo{mappings: map[int64]domain.FieldMapping{
		testMappingID:  {ID: testMappingID, ClientID: testClientID, Name: "orders", Rules: json.RawMessage(rules)},
		otherMappingID: {ID: otherMappingID, ClientID: otherClientID, Name: "other", Rules: json.RawMessage(`{}`)},
	}}
	clients := &stubClientRepo{clients: map[int64]domain.Client{
		testClientID:  {ID: testClientID, Name: "Acme", IsActive: true},
		otherClientID: {ID: otherClientID, Name: "Globex", IsActive: true},
	}}

	var counter int
	base := []Option{
		WithLogger(zap.New(core).Sugar()),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			counter++
			return fmt.Sprintf("id-%d", counter)
		}),
	}

	svc := NewService(repo, mappings, clients, store, append(base, opts...)...)
	return &fixture{svc: svc, repo: repo, store: store, mappings: mappings, logs: logs}
}

func (f *fixture) initiate(t *testing.T) domain.ImportRecord {
	t.Helper()
	record, err := f.svc.Initiate(context.Background(), InitiateRequest{
		ClientID:       testClientID,
		FieldMappingID: testMappingID,
		UserID:         testUserID,
	})
	if err != nil {
		t.Fatalf("initiate returned error: %v", err)
	}
	return record
}

func csvFile(name, content string) File {
	return File{Name: name, ContentType: "text/csv", Data: []byte(content)}
}
