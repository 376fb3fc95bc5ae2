package imports

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rpattn/orderimport/internal/auth"
	"github.com/rpattn/orderimport/internal/domain"
)

const multipartMemory = 32 << 20

// Handler exposes the import operations over HTTP.
type Handler struct {
	service *Service
	log     *zap.SugaredLogger
}

// NewHTTPHandler returns a router meant to be mounted under /api/imports
// behind auth.Middleware.
func NewHTTPHandler(service *Service, log *zap.SugaredLogger) http.Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	h := &Handler{service: service, log: log}

	r := chi.NewRouter()
	r.Post("/", h.initiate)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/file", h.upload)
	r.Post("/{id}/process", h.process)
	r.Get("/{id}/results/{kind}", h.results)
	return r
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: auth.ErrUnauthenticated.Error()})
		return
	}

	var req InitiateRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	req.UserID = userID

	record, err := h.service.Initiate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ListFilter{
		Search: strings.TrimSpace(query.Get("search")),
		Sort:   strings.TrimSpace(query.Get("sort")),
	}

	if raw := strings.TrimSpace(query.Get("client_id")); raw != "" {
		clientID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || clientID <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid client_id"})
			return
		}
		filter.ClientID = &clientID
	}
	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			status, err := domain.ParseImportStatus(strings.TrimSpace(part))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	var err error
	if filter.Page, err = intParam(query.Get("page")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid page"})
		return
	}
	if filter.Limit, err = intParam(query.Get("limit")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit"})
		return
	}

	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	importID, userID, ok := h.identify(w, r)
	if !ok {
		return
	}

	record, err := h.service.Get(r.Context(), importID, userID)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	importID, userID, ok := h.identify(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxFileSize()+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, ErrFileTooLarge, nil)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid form data: %v", err)})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("file required: %v", err)})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("failed to read file: %v", err)})
		return
	}

	result, err := h.service.UploadAndProcess(r.Context(), importID, userID, File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.writeError(w, r, err, &result.Record)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	importID, userID, ok := h.identify(w, r)
	if !ok {
		return
	}

	result, err := h.service.Process(r.Context(), importID, userID)
	if err != nil {
		h.writeError(w, r, err, &result.Record)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	importID, userID, ok := h.identify(w, r)
	if !ok {
		return
	}

	kind, err := ParseResultKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	query := r.URL.Query()
	page, err := intParam(query.Get("page"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid page"})
		return
	}
	limit, err := intParam(query.Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit"})
		return
	}

	result, err := h.service.Results(r.Context(), importID, userID, kind, page, limit)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) identify(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: auth.ErrUnauthenticated.Error()})
		return 0, 0, false
	}
	importID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || importID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid import id"})
		return 0, 0, false
	}
	return importID, userID, true
}

type errorBody struct {
	Error  string               `json:"error"`
	Import *domain.ImportRecord `json:"import,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrMappingClientMismatch), errors.Is(err, ErrInvalidMappingFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNotReady), errors.Is(err, ErrEmptyFile):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, record *domain.ImportRecord) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if record != nil && record.ID != 0 {
		body.Import = record
	}

	if status >= http.StatusInternalServerError {
		h.log.Errorw("import request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		var decodeErr *DecodeError
		var storageErr *StorageError
		if !errors.As(err, &decodeErr) && !errors.As(err, &storageErr) {
			body.Error = "internal server error"
		}
	}
	writeJSON(w, status, body)
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
