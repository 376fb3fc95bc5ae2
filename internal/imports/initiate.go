package imports

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/orderimport/internal/auth"
	"github.com/rpattn/orderimport/internal/domain"
	"github.com/rpattn/orderimport/internal/repository"
)

// InitiateRequest describes a new import attempt.
type InitiateRequest struct {
	ClientID       int64  `json:"client_id"`
	FieldMappingID int64  `json:"field_mapping_id"`
	UserID         int64  `json:"-"`
	CustomName     string `json:"custom_name,omitempty"`
}

// Initiate validates the client and mapping and creates a record in the
// initiated state. Nothing is written when validation fails.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (domain.ImportRecord, error) {
	if req.ClientID <= 0 || req.FieldMappingID <= 0 || req.UserID <= 0 {
		return domain.ImportRecord{}, fmt.Errorf("%w: client_id, field_mapping_id and user are required", ErrInvalidRequest)
	}
	if err := auth.EnforceClientScope(ctx, req.ClientID); err != nil {
		return domain.ImportRecord{}, fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	if _, err := s.clients.GetByID(ctx, req.ClientID); err != nil {
		return domain.ImportRecord{}, translateRepoError(err)
	}

	fieldMapping, err := s.mappings.GetByID(ctx, req.FieldMappingID)
	if err != nil {
		return domain.ImportRecord{}, translateRepoError(err)
	}
	if fieldMapping.ClientID != req.ClientID {
		return domain.ImportRecord{}, fmt.Errorf("%w: mapping %d, client %d", ErrMappingClientMismatch, req.FieldMappingID, req.ClientID)
	}

	var name *string
	if trimmed := strings.TrimSpace(req.CustomName); trimmed != "" {
		name = &trimmed
	}

	record, err := s.imports.Create(ctx, domain.NewImportRecord(req.ClientID, req.UserID, req.FieldMappingID, name))
	if err != nil {
		return domain.ImportRecord{}, fmt.Errorf("create import: %w", err)
	}

	s.log.Infow("import initiated",
		"import_id", record.ID,
		"client_id", record.ClientID,
		"field_mapping_id", record.FieldMappingID,
		"user_id", record.UserID,
	)
	return record, nil
}

const (
	defaultPageLimit = 20
	maxPageLimit     = repository.MaxListLimit
)

// ListFilter selects a page of imports.
type ListFilter struct {
	ClientID *int64
	Statuses []domain.ImportStatus
	Search   string
	Sort     string
	Page     int
	Limit    int
}

// Page is one page of imports.
type Page struct {
	Items []domain.ImportRecord `json:"items"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
	Pages int                   `json:"pages"`
}

// List returns imports matching filter. A caller scoped to one client only
// sees that client's imports.
func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	clientID := filter.ClientID
	if scoped, ok := auth.ClientIDFromContext(ctx); ok {
		if clientID != nil && *clientID != scoped {
			return Page{}, fmt.Errorf("%w: client_id %d does not match authenticated scope", ErrForbidden, *clientID)
		}
		clientID = &scoped
	}

	sort := strings.TrimSpace(filter.Sort)
	if sort == "" {
		sort = repository.DefaultImportSort
	}
	if !repository.IsImportSortKey(sort) {
		return Page{}, fmt.Errorf("%w: unknown sort %q", ErrInvalidRequest, sort)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	records, total, err := s.imports.List(ctx, domain.ImportRecordFilter{
		ClientID: clientID,
		Statuses: filter.Statuses,
		Search:   filter.Search,
		Sort:     sort,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return Page{}, fmt.Errorf("list imports: %w", err)
	}

	return Page{
		Items: records,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: (total + limit - 1) / limit,
	}, nil
}
