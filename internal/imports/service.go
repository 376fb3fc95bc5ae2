// Package imports drives the two-stage import pipeline: the upload stage
// stores the original file and the processing stage maps every row through
// the client's rule set. Each stage pairs object-store writes with one
// relational commit and undoes the writes when the commit fails.
package imports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/orderimport/internal/auth"
	"github.com/rpattn/orderimport/internal/domain"
	"github.com/rpattn/orderimport/internal/repository"
	"github.com/rpattn/orderimport/internal/storage"
)

const (
	defaultSampleSize     = 10
	defaultMaxFileSize    = 20 << 20
	defaultProcessTimeout = 5 * time.Minute
	cleanupTimeout        = 30 * time.Second
	maxStatusDetails      = 2000
)

// Service coordinates the object store, the rule engine and the import record store.
type Service struct {
	imports  repository.ImportRecordRepository
	mappings repository.FieldMappingRepository
	clients  repository.ClientRepository
	store    storage.ObjectStore
	catalog  domain.FieldCatalog

	log   *zap.SugaredLogger
	now   func() time.Time
	newID func() string

	sampleSize     int
	maxFileSize    int64
	processTimeout time.Duration
}

// Option customises a Service.
type Option func(*Service)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the generator used for blob key segments.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func WithCatalog(catalog domain.FieldCatalog) Option {
	return func(s *Service) {
		if catalog != nil {
			s.catalog = catalog
		}
	}
}

// WithSampleSize bounds the successful rows kept in memory for preview.
func WithSampleSize(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.sampleSize = n
		}
	}
}

func WithMaxFileSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFileSize = n
		}
	}
}

// WithProcessTimeout bounds blob retrieval, decoding and row evaluation.
func WithProcessTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.processTimeout = d
		}
	}
}

// NewService creates a new import service.
func NewService(
	imports repository.ImportRecordRepository,
	mappings repository.FieldMappingRepository,
	clients repository.ClientRepository,
	store storage.ObjectStore,
	opts ...Option,
) *Service {
	s := &Service{
		imports:        imports,
		mappings:       mappings,
		clients:        clients,
		store:          store,
		catalog:        domain.OrderFields,
		log:            zap.NewNop().Sugar(),
		now:            func() time.Time { return time.Now().UTC() },
		newID:          func() string { return uuid.NewString() },
		sampleSize:     defaultSampleSize,
		maxFileSize:    defaultMaxFileSize,
		processTimeout: defaultProcessTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxFileSize reports the upload size limit in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.maxFileSize
}

// Get returns one import owned by the acting user.
func (s *Service) Get(ctx context.Context, importID, userID int64) (domain.ImportRecord, error) {
	return s.loadOwned(ctx, importID, userID)
}

func (s *Service) loadOwned(ctx context.Context, importID, userID int64) (domain.ImportRecord, error) {
	if importID <= 0 {
		return domain.ImportRecord{}, fmt.Errorf("%w: import id is required", ErrInvalidRequest)
	}
	record, err := s.imports.GetByID(ctx, importID)
	if err != nil {
		return domain.ImportRecord{}, translateRepoError(err)
	}
	if record.UserID != userID {
		return domain.ImportRecord{}, fmt.Errorf("%w: import %d", ErrForbidden, importID)
	}
	if err := auth.EnforceClientScope(ctx, record.ClientID); err != nil {
		return domain.ImportRecord{}, fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return record, nil
}

func originalFileKey(clientID, importID int64, id, fileName string) string {
	return fmt.Sprintf("clients/%d/imports/%d/original/%s-%s", clientID, importID, id, storage.SanitizeName(fileName))
}

func resultKey(clientID, importID int64, runID string, kind ResultKind) string {
	return fmt.Sprintf("clients/%d/imports/%d/results/%s/%s.json", clientID, importID, runID, kind)
}

func truncateDetails(details string) string {
	runes := []rune(details)
	if len(runes) <= maxStatusDetails {
		return details
	}
	return string(runes[:maxStatusDetails-3]) + "..."
}

func stringPtr(value string) *string {
	return &value
}

func intPtr(value int) *int {
	return &value
}
